package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/brevets/pkg/acp"
)

var (
	brevetKm   float64
	startFlag  string
	rulesFlag  string
	showSpeeds bool
)

var timesCmd = &cobra.Command{
	Use:   "times <control-km>...",
	Short: "Print control open and close times",
	Long: `Compute the open and close times of one or more controls on a brevet.

Start times without a UTC offset are read in calc.timezone.`,
	Example: `  brevets times --brevet 200 --start 2023-01-01T07:00-08:00 0 60 120 200
  brevets times --brevet 600 --start "2023-06-03 06:00" --rules acp -o json 0 200 400 600`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTimes,
}

func init() {
	rootCmd.AddCommand(timesCmd)

	timesCmd.Flags().Float64VarP(&brevetKm, "brevet", "b", 200, "nominal brevet distance in km (200, 300, 400, 600 or 1000)")
	timesCmd.Flags().StringVarP(&startFlag, "start", "s", "", "brevet start, ISO 8601 or \"YYYY-MM-DD HH:mm\" (required)")
	timesCmd.Flags().StringVar(&rulesFlag, "rules", "", "rule set: reference or acp (default from calc.rules)")
	timesCmd.Flags().BoolVar(&showSpeeds, "speeds", false, "also print the speed tables")
	timesCmd.MarkFlagRequired("start")
}

type controlRow struct {
	ControlKm float64 `json:"control_km" yaml:"control_km"`
	Open      string  `json:"open" yaml:"open"`
	Close     string  `json:"close" yaml:"close"`
	OpenISO   string  `json:"open_iso" yaml:"open_iso"`
	CloseISO  string  `json:"close_iso" yaml:"close_iso"`
}

type timesResult struct {
	BrevetKm  float64        `json:"brevet_km" yaml:"brevet_km"`
	Start     string         `json:"start" yaml:"start"`
	Rules     string         `json:"rules" yaml:"rules"`
	Controls  []controlRow   `json:"controls" yaml:"controls"`
	MaxSpeeds acp.SpeedTable `json:"max_speeds,omitempty" yaml:"max_speeds,omitempty"`
	MinSpeeds acp.SpeedTable `json:"min_speeds,omitempty" yaml:"min_speeds,omitempty"`
}

func runTimes(cmd *cobra.Command, args []string) error {
	if !acp.ValidBrevetDistance(brevetKm) {
		return fmt.Errorf("%w: %gkm is not one of %v", acp.ErrInvalidBrevetDistance, brevetKm, acp.BrevetDistances)
	}

	rules := rulesFlag
	if rules == "" {
		rules = cfg.Calc.Rules
	}
	ruleSet, err := acp.ParseRules(rules)
	if err != nil {
		return err
	}

	start, err := parseStartFlag(startFlag)
	if err != nil {
		return err
	}

	calc := acp.NewCalculator(ruleSet)
	result := timesResult{
		BrevetKm: brevetKm,
		Start:    start.Format(time.RFC3339),
		Rules:    string(ruleSet),
	}

	for _, arg := range args {
		km, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", acp.ErrInvalidDistance, arg)
		}
		win, err := calc.Window(km, brevetKm, start)
		if err != nil {
			return fmt.Errorf("control %s: %w", arg, err)
		}
		open, closeAt := win.Format()
		result.Controls = append(result.Controls, controlRow{
			ControlKm: km,
			Open:      open,
			Close:     closeAt,
			OpenISO:   win.Open.Format(time.RFC3339),
			CloseISO:  win.Close.Format(time.RFC3339),
		})
	}

	if showSpeeds {
		result.MaxSpeeds = acp.MaxSpeeds()
		result.MinSpeeds = acp.MinSpeeds()
	}

	w := cmd.OutOrStdout()
	switch {
	case isFormat("json"):
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case isFormat("yaml"):
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(result)
	}

	fmt.Fprintf(w, "%gkm brevet starting %s (%s rules)\n\n", result.BrevetKm, acp.FormatDisplay(start), result.Rules)

	table := tablewriter.NewWriter(w)
	table.Header("Km", "Open", "Close")
	for _, row := range result.Controls {
		table.Append(strconv.FormatFloat(row.ControlKm, 'f', -1, 64), row.Open, row.Close)
	}
	table.Render()

	if showSpeeds {
		fmt.Fprintln(w)
		speeds := tablewriter.NewWriter(w)
		speeds.Header("From km", "To km", "Max km/h", "Min km/h")
		for i, band := range result.MaxSpeeds {
			speeds.Append(
				strconv.FormatFloat(band.LowKm, 'f', -1, 64),
				strconv.FormatFloat(band.HighKm, 'f', -1, 64),
				strconv.FormatFloat(band.Speed, 'f', -1, 64),
				strconv.FormatFloat(result.MinSpeeds[i].Speed, 'f', -1, 64),
			)
		}
		speeds.Render()
	}
	return nil
}

// parseStartFlag accepts ISO 8601 and the "YYYY-MM-DD HH:mm" form. Times
// without an offset are read in the configured zone.
func parseStartFlag(s string) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return acp.ParseStart(s)
}
