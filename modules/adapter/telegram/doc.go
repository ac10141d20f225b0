// Package telegram is the Telegram Bot API adapter.
//
// Raw updates arrive either by long or short polling (Poller) or pushed to
// the gateway webhook. A Classifier turns each one into an Event, which is
// handed to the host's core.EventHandler together with a Bot. The Bot
// composes content segments into Bot API calls: one send<Type> call, or a
// sendMediaGroup album when a message carries several media.
//
// The module registers itself as "adapter.telegram". With the "server"
// driver it uses the webhook; otherwise it polls.
//
// The Bot API is spoken directly over net/http and encoding/json.
package telegram
