package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/KyleBrandon/lbis-server/config"
	"github.com/KyleBrandon/lbis-server/internal/state"
	"github.com/KyleBrandon/lbis-server/pkg/server"
	"github.com/KyleBrandon/lbis-server/pkg/utils"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	var (
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the persisted session state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(file) == 0 {
				path, err := stateFileFromConfig()
				if err != nil {
					return err
				}
				file = path
			}

			snap, err := readState(file)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			renderState(cmd.OutOrStdout(), snap, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "State file to read (defaults to the configured state_file)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw state as JSON")

	return cmd
}

func stateFileFromConfig() (string, error) {
	location := os.Getenv("CONFIG_FILE_LOCATION")
	if len(location) == 0 {
		location = server.DEFAULT_CONFIG_FILE_LOCATION
	}

	cfg, err := config.LoadConfigSettings(location)
	if err != nil {
		return "", err
	}

	return cfg.StateFile, nil
}

// readState parses the file as written. Unlike Store.Load it never repairs
// or creates the file.
func readState(path string) (state.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("read state file: %w", err)
	}

	var snap state.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return state.Snapshot{}, fmt.Errorf("parse state file %q: %w", path, err)
	}

	return snap, nil
}

func renderState(w io.Writer, snap state.Snapshot, now time.Time) {
	label := color.New(color.Bold).Sprint

	fmt.Fprintf(w, "%s %s (default %s)\n", label("Session:"), utils.FormatTime(snap.SessionTimeRemaining), utils.FormatTime(snap.DefaultSessionTime))
	fmt.Fprintf(w, "%s %s\n", label("Banked:"), utils.FormatTime(snap.BankedTime))
	fmt.Fprintf(w, "%s %.2f\n", label("Intensity:"), snap.PumpIntensity)

	latch := color.New(color.FgGreen).Sprint("unlatched")
	if snap.LatchActive {
		latch = color.New(color.FgRed).Sprint("LATCHED")
		if reason := snap.Reason(); len(reason) != 0 {
			latch += fmt.Sprintf(" (%s)", reason)
		}
		if snap.LatchEndTime != nil {
			latch += fmt.Sprintf(", %s left", utils.FormatTime(int(snap.LatchEndTime.Sub(now).Seconds())))
		}
	}
	fmt.Fprintf(w, "%s %s\n", label("Latch:"), latch)

	task := "none"
	if snap.PumpTaskEndTime != nil || len(snap.PumpTaskMode) != 0 {
		task = color.New(color.FgYellow).Sprintf("%s run marker present", snap.PumpTaskMode)
	}
	fmt.Fprintf(w, "%s %s\n", label("Pump task:"), task)

	last := "never"
	if snap.LastPumpTime != nil {
		last = snap.LastPumpTime.Local().Format(time.RFC1123)
	}
	fmt.Fprintf(w, "%s %s\n", label("Last pump command:"), last)

	wearer := color.New(color.FgYellow).Sprint("not registered")
	if len(snap.WearerID) != 0 {
		wearer = snap.WearerID
	}
	fmt.Fprintf(w, "%s %s\n", label("Wearer:"), wearer)
}
