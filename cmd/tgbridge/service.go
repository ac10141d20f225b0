package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/tgbridge/pkg/app"
)

// program runs tgbridge under a system service manager.
type program struct {
	params app.RunParams

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan error, 1)
	p.mu.Unlock()

	go func() { p.done <- app.Run(ctx, p.params) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return <-done
}

func serviceCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|run>",
		Short:     "Manage tgbridge as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: append([]string{"run"}, service.ControlAction[:]...),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			if cfgPath != "" {
				abs, err := filepath.Abs(cfgPath)
				if err != nil {
					return err
				}
				params.ConfigPath = abs
			}

			svc, err := newService(&program{params: params})
			if err != nil {
				return err
			}
			if args[0] == "run" {
				return svc.Run()
			}
			if err := service.Control(svc, args[0]); err != nil {
				return fmt.Errorf("service %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Override the data directory")
	cmd.Flags().String("log-level", "", "Override the log level (debug, info, warn, error)")
	return cmd
}

func newService(p *program) (service.Service, error) {
	args := []string{"service", "run"}
	if p.params.ConfigPath != "" {
		args = append(args, "--config", p.params.ConfigPath)
	}
	if p.params.DataDir != "" {
		args = append(args, "--data-dir", p.params.DataDir)
	}
	return service.New(p, &service.Config{
		Name:        "tgbridge",
		DisplayName: "tgbridge",
		Description: "Telegram bot bridge",
		Arguments:   args,
	})
}
