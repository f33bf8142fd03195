package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edvin/quadops/internal/manifest"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List applications and their overall status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			statuses, err := rt.orch.AllStatuses(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(statuses))
			for name := range statuses {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "APP\tSTATUS\tSERVICES\tERRORS\tLAST DEPLOYMENT")
			for _, name := range names {
				s := statuses[name]
				last := "-"
				if s.LastDeployment != nil {
					last = fmt.Sprintf("%s (%s)", s.LastDeployment.Status, shortCommit(s.LastDeployment.CommitHash))
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", name, s.OverallStatus, s.ServiceCount, s.ErrorCount, last)
			}
			return w.Flush()
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <app>",
		Short: "Show the full status of one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := rt.orch.AppStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			// Live systemd view next to the recorded one; skipped when the
			// app has no known services yet.
			live, err := rt.orch.LiveUnitStates(cmd.Context(), args[0])
			if err != nil {
				return nil
			}
			names := make([]string, 0, len(live))
			for name := range live {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tACTIVE\tSUB")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, live[name].ActiveState, live[name].SubState)
			}
			return w.Flush()
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <app>",
		Short: "Start all services of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := rt.orch.StartApp(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Started %s\n", args[0])
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <app>",
		Short: "Stop all services of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := rt.orch.StopApp(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Stopped %s\n", args[0])
			return nil
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <app>",
		Short: "Restart all services of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := rt.orch.RestartApp(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Restarted %s\n", args[0])
			return nil
		},
	}
}

func newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <app>",
		Short: "Run one reconciliation for an application now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			app, err := rt.app(args[0])
			if err != nil {
				return err
			}
			if err := rt.orch.Reconcile(cmd.Context(), app); err != nil {
				return err
			}
			fmt.Printf("Deployed %s\n", app.Name)
			return nil
		},
	}
}

func newManifestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manifests",
		Short: "List unit files in the managed directory and their active state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			units, err := rt.processor.DeployedUnits()
			if err != nil {
				return err
			}
			if len(units) == 0 {
				fmt.Println("No deployed manifests")
				return nil
			}

			// Only container manifests generate startable units.
			active := make(map[string]bool)
			if names, err := rt.services.ActiveUnits(cmd.Context(), units[manifest.KindContainer]); err == nil {
				for _, name := range names {
					active[name] = true
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tACTIVE")
			for kind, names := range units {
				for _, name := range names {
					state := "-"
					if kind == manifest.KindContainer {
						state = "no"
						if active[name] {
							state = "yes"
						}
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", kind, name, state)
				}
			}
			return w.Flush()
		},
	}
}

func newBackupsCmd() *cobra.Command {
	backups := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and restore manifest backups",
	}

	backups.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived manifest backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			list, err := rt.processor.ListBackups()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No backups")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tARCHIVED\tPATH")
			for _, b := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", b.Name, b.Archived.Format("2006-01-02 15:04:05"), b.Path)
			}
			return w.Flush()
		},
	})

	var keep int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old backups, keeping the most recent copies of each file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			return rt.processor.CleanupBackups(keep)
		},
	}
	cleanupCmd.Flags().IntVar(&keep, "keep", 5, "Backups to keep per unit file")
	backups.AddCommand(cleanupCmd)

	backups.AddCommand(&cobra.Command{
		Use:   "restore <file>",
		Short: "Restore the newest backup of a unit file into the managed directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := rt.processor.RestoreBackup(args[0]); err != nil {
				return err
			}
			fmt.Printf("Restored %s\n", args[0])
			return nil
		},
	})

	return backups
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration inspection",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, cleanup, err := newRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			redacted := *rt.cfg
			if redacted.Influx != nil {
				influx := *redacted.Influx
				influx.Token = "<redacted>"
				redacted.Influx = &influx
			}

			out, err := yaml.Marshal(&redacted)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})

	return configCmd
}

func shortCommit(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
