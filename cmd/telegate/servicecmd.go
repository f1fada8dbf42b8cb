package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/telegate/telegate/pkg/app"
)

const serviceStopTimeout = 30 * time.Second

// program adapts the bridge run loop to the service manager lifecycle.
// Start must return immediately, so the run loop gets its own goroutine and
// Stop waits for it to drain.
type program struct {
	params   app.RunParams
	shutdown chan struct{}
	done     chan error
}

func newProgram(params app.RunParams) *program {
	p := &program{
		shutdown: make(chan struct{}),
		done:     make(chan error, 1),
	}
	params.Shutdown = p.shutdown
	p.params = params
	return p
}

func (p *program) Start(_ service.Service) error {
	go func() {
		p.done <- app.Run(p.params)
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	close(p.shutdown)
	select {
	case err := <-p.done:
		return err
	case <-time.After(serviceStopTimeout):
		return errors.New("service: shutdown timed out")
	}
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run the bridge under the system service manager",
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().String("data-dir", "", "Override the persistent data directory")
	cmd.AddCommand(
		serviceInstallCmd(),
		serviceUninstallCmd(),
		serviceStartCmd(),
		serviceStopCmd(),
		serviceRunCmd(),
	)
	return cmd
}

// serviceConfig describes the bridge to the service manager. The config path
// is made absolute because the manager starts the process from its own
// working directory.
func serviceConfig(cmd *cobra.Command) (*service.Config, app.RunParams, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	if cfgPath == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return nil, app.RunParams{}, err
		}
		cfgPath = resolved
	}
	absPath, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, app.RunParams{}, err
	}

	args := []string{"service", "run", "--config", absPath}
	if dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}

	return &service.Config{
		Name:        "telegate",
		DisplayName: "Telegate",
		Description: "Telegram bridge for conversational agent backends",
		Arguments:   args,
	}, app.RunParams{ConfigPath: absPath, DataDir: dataDir}, nil
}

func newService(cmd *cobra.Command) (service.Service, error) {
	svcCfg, params, err := serviceConfig(cmd)
	if err != nil {
		return nil, err
	}
	return service.New(newProgram(params), svcCfg)
}

func serviceInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the bridge as a system service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cmd)
			if err != nil {
				return err
			}
			if err := s.Install(); err != nil {
				return err
			}
			fmt.Println("Service installed. Start it with: telegate service start")
			return nil
		},
	}
}

func serviceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the system service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cmd)
			if err != nil {
				return err
			}
			if err := s.Uninstall(); err != nil {
				return err
			}
			fmt.Println("Service uninstalled.")
			return nil
		},
	}
}

func serviceStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the installed service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cmd)
			if err != nil {
				return err
			}
			return s.Start()
		},
	}
}

func serviceStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the installed service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cmd)
			if err != nil {
				return err
			}
			return s.Stop()
		},
	}
}

func serviceRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (invoked by the manager itself)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cmd)
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
}
