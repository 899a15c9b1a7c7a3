// Package main is the CLI entry point for shiftd.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/focusshift/shiftd/internal/cfgutil"
	"github.com/focusshift/shiftd/internal/domain"
	"github.com/focusshift/shiftd/internal/infra"
	"github.com/focusshift/shiftd/internal/profile"
	"github.com/focusshift/shiftd/internal/schedule"
	"github.com/focusshift/shiftd/internal/session"
	"github.com/focusshift/shiftd/internal/store"
	"github.com/focusshift/shiftd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shiftd",
	Short: "Device focus controller - shifts a supervised device into restricted mode",
	Long: `shiftd manages a supervised iOS device over USB via Apple Configurator's
cfgutil. It installs a restriction profile to "shift" the device into focus
mode (blocked apps and sites disappear) and removes it to shift back.

Schedules can flip the device automatically, and a timed focus session
prevents unshifting until the timer runs out.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the connected device",
	Long:  `Lists the first USB-connected device and whether the restriction profile is installed.`,
	RunE:  runDetect,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device and session status",
	Long:  `Shows the connected device, shift state, active focus session, and configured schedules.`,
	RunE:  runStatus,
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List apps installed on the device",
	RunE:  runApps,
}

var shiftCmd = &cobra.Command{
	Use:   "shift",
	Short: "Shift the device into focus mode",
	Long: `Installs the restriction profile on the connected device. Blocked apps and
web domains come from the preference store.

With --for, also starts a focus session that locks the device in focus mode
for the given duration; unshift is refused until it expires.`,
	RunE: runShift,
}

var unshiftCmd = &cobra.Command{
	Use:   "unshift",
	Short: "Shift the device back to normal mode",
	Long:  `Removes the restriction profile. Refused while a focus session is active.`,
	RunE:  runUnshift,
}

var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Put the device under supervision (ERASES the device)",
	Long: `Backs up the device, erases and re-provisions it as supervised, then
restores the backup. Supervision is required before profiles can be
installed silently.

THE DEVICE IS ERASED DURING THIS PROCESS. The backup/restore cycle
preserves data, but do not disconnect the device while it runs.`,
	RunE: runSupervise,
}

var unsuperviseCmd = &cobra.Command{
	Use:   "unsupervise",
	Short: "Remove supervision from the device",
	Long: `Removes supervision and clears all local preferences, schedules, and
sessions. The restriction profile stops being manageable afterwards.`,
	RunE: runUnsupervise,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage automatic shift/unshift schedules",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a schedule",
	Long: `Adds a recurring rule. Examples:

  shiftd schedule add --action shift --time 21:00 --days weekdays
  shiftd schedule add --action unshift --time 7:30 --days mon,tue,fri`,
	RunE: runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE:  runScheduleList,
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRemove,
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleToggle(true),
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleToggle(false),
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the schedule monitor in the foreground",
	Long: `Evaluates schedules every tick and shifts/unshifts the device when a rule
fires. Installed as a LaunchAgent by default so it survives logins; run
directly for debugging.`,
	RunE: runMonitor,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	shiftFor     time.Duration
	scheduleArgs struct {
		action string
		at     string
		days   string
	}
	assumeYes  bool
	jsonOutput bool
)

func init() {
	cobra.OnInitialize(initConfig)

	shiftCmd.Flags().DurationVar(&shiftFor, "for", 0, "Lock focus mode for this duration (e.g. 2h, 45m)")
	superviseCmd.Flags().BoolVar(&assumeYes, "yes", false, "Skip the confirmation prompt")
	unsuperviseCmd.Flags().BoolVar(&assumeYes, "yes", false, "Skip the confirmation prompt")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	scheduleAddCmd.Flags().StringVar(&scheduleArgs.action, "action", "", "Action to run: shift or unshift")
	scheduleAddCmd.Flags().StringVar(&scheduleArgs.at, "time", "", "Trigger time as HH:MM (24-hour)")
	scheduleAddCmd.Flags().StringVar(&scheduleArgs.days, "days", "daily", "Days: daily, weekdays, weekends, or mon,tue,...")
	_ = scheduleAddCmd.MarkFlagRequired("action")
	_ = scheduleAddCmd.MarkFlagRequired("time")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleEnableCmd)
	scheduleCmd.AddCommand(scheduleDisableCmd)

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(shiftCmd)
	rootCmd.AddCommand(unshiftCmd)
	rootCmd.AddCommand(superviseCmd)
	rootCmd.AddCommand(unsuperviseCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	home, _ := os.UserHomeDir()

	viper.SetDefault("cfgutil_path", cfgutil.DefaultPath)
	viper.SetDefault("data_dir", filepath.Join(home, "Library", "Application Support", "shiftd"))
	viper.SetDefault("tick_interval", schedule.DefaultTickInterval)
	viper.SetDefault("log_path", "/var/tmp/shiftd.log")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join(home, ".config", "shiftd"))
	viper.SetEnvPrefix("SHIFTD")
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}

// app wires the long-lived components behind each command.
type app struct {
	logger       *zap.Logger
	prefs        *store.EncryptedStore
	orchestrator *usecase.Orchestrator
	engine       *schedule.Engine
}

func buildApp(logger *zap.Logger) (*app, error) {
	clock := infra.NewSystemClock()

	prefStore, err := store.Open(viper.GetString("data_dir"), clock)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store: %w", err)
	}

	client := cfgutil.NewClient(viper.GetString("cfgutil_path"), cfgutil.NewExecRunner(), logger)
	guard := session.NewGuard(prefStore, clock, logger)
	orchestrator := usecase.NewOrchestrator(
		client,
		profile.NewBuilder(),
		guard,
		prefStore,
		infra.NewProcessManager(),
		clock,
		logger,
	)

	engine := schedule.NewEngine(prefStore, orchestrator, clock, viper.GetDuration("tick_interval"), logger)
	if err := engine.Load(); err != nil {
		_ = prefStore.Close()
		return nil, err
	}

	return &app{
		logger:       logger,
		prefs:        prefStore,
		orchestrator: orchestrator,
		engine:       engine,
	}, nil
}

func (a *app) close() {
	_ = a.prefs.Close()
	_ = a.logger.Sync()
}

func runDetect(cmd *cobra.Command, args []string) error {
	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	device, err := app.orchestrator.Detect(cmd.Context())
	if err != nil {
		return fmt.Errorf("device detection failed: %w", err)
	}
	if device == nil {
		fmt.Println("No device connected.")
		return nil
	}

	fmt.Printf("Device: %s\n", device.Name)
	fmt.Printf("UDID:   %s\n", device.UDID)
	fmt.Printf("State:  %s\n", device.StatusText())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	fmt.Println("=== shiftd Status ===")

	device, err := app.orchestrator.Detect(cmd.Context())
	switch {
	case err != nil:
		fmt.Printf("Device: unavailable (%v)\n", err)
	case device == nil:
		fmt.Println("Device: not connected")
	default:
		fmt.Printf("Device: %s (%s)\n", device.Name, device.UDID)
		fmt.Printf("State:  %s\n", device.StatusText())

		supervised, serr := app.orchestrator.IsSupervised(cmd.Context())
		if serr == nil {
			fmt.Printf("Supervised: %v\n", supervised)
		}
	}

	current, err := app.prefs.LoadFocusSession()
	if err == nil && current != nil && current.Active(time.Now()) {
		fmt.Printf("Focus session: %s remaining\n", current.RemainingString(time.Now()))
	} else {
		fmt.Println("Focus session: none")
	}

	rules := app.engine.Rules()
	fmt.Printf("Schedules: %d configured\n", len(rules))

	if infra.NewLaunchdManager().IsInstalled() {
		fmt.Println("Monitor: installed (LaunchAgent)")
	} else {
		fmt.Println("Monitor: not installed")
	}

	fmt.Println("=====================")
	return nil
}

func runApps(cmd *cobra.Command, args []string) error {
	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	apps, err := app.orchestrator.InstalledApps(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list apps: %w", err)
	}
	if len(apps) == 0 {
		fmt.Println("No apps reported.")
		return nil
	}

	for _, a := range apps {
		fmt.Printf("%-40s %s\n", a.BundleID, a.Name)
	}
	return nil
}

func runShift(cmd *cobra.Command, args []string) error {
	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.orchestrator.Shift(cmd.Context(), shiftFor); err != nil {
		return fmt.Errorf("shift failed: %w", err)
	}

	fmt.Println("Device shifted into focus mode.")
	if shiftFor > 0 {
		fmt.Printf("Focus session locked for %s.\n", shiftFor)
	}
	return nil
}

func runUnshift(cmd *cobra.Command, args []string) error {
	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.orchestrator.Unshift(cmd.Context()); err != nil {
		var sessionErr *domain.SessionActiveError
		if errors.As(err, &sessionErr) {
			fmt.Printf("Focus session active: %s remaining. Unshift refused.\n", sessionErr.Remaining)
			return nil
		}
		return fmt.Errorf("unshift failed: %w", err)
	}

	fmt.Println("Device shifted back to normal mode.")
	return nil
}

func runSupervise(cmd *cobra.Command, args []string) error {
	if !assumeYes && !confirm("This will ERASE and re-provision the device (data is restored from a backup afterwards). Continue?") {
		fmt.Println("Aborted.")
		return nil
	}

	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	err = app.orchestrator.BootstrapSupervision(cmd.Context(), func(step string) {
		fmt.Printf("  %s\n", step)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySupervised) {
			fmt.Println("Device is already supervised.")
			return nil
		}
		return fmt.Errorf("supervision failed: %w", err)
	}

	fmt.Println("Device is now supervised.")
	return nil
}

func runUnsupervise(cmd *cobra.Command, args []string) error {
	if !assumeYes && !confirm("This removes supervision and clears all local schedules and sessions. Continue?") {
		fmt.Println("Aborted.")
		return nil
	}

	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.orchestrator.RemoveSupervision(cmd.Context()); err != nil {
		return fmt.Errorf("failed to remove supervision: %w", err)
	}

	fmt.Println("Supervision removed. Local state cleared.")
	return nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	action, err := parseAction(scheduleArgs.action)
	if err != nil {
		return err
	}
	at, err := parseTimeOfDay(scheduleArgs.at)
	if err != nil {
		return err
	}
	days, err := parseDays(scheduleArgs.days)
	if err != nil {
		return err
	}

	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	rule := domain.NewSchedule(action, at, days)
	if err := app.engine.Add(rule); err != nil {
		return err
	}

	fmt.Printf("Added schedule %s: %s at %s (%s)\n",
		rule.ID, rule.Action.DisplayName(), rule.Time, rule.DaysString())
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	rules := app.engine.Rules()
	if len(rules) == 0 {
		fmt.Println("No schedules configured.")
		return nil
	}

	for _, r := range rules {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		fmt.Printf("%s  %-8s %5s  %-12s [%s]\n",
			r.ID, r.Action.DisplayName(), r.Time, r.DaysString(), state)
	}
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid schedule id %q: %w", args[0], err)
	}

	app, err := buildApp(zap.NewNop())
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.engine.Remove(id); err != nil {
		return err
	}
	fmt.Println("Schedule removed.")
	return nil
}

func runScheduleToggle(enable bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid schedule id %q: %w", args[0], err)
		}

		app, err := buildApp(zap.NewNop())
		if err != nil {
			return err
		}
		defer app.close()

		for _, r := range app.engine.Rules() {
			if r.ID == id {
				if r.Enabled == enable {
					fmt.Println("Schedule already in that state.")
					return nil
				}
				if err := app.engine.Toggle(id); err != nil {
					return err
				}
				if enable {
					fmt.Println("Schedule enabled.")
				} else {
					fmt.Println("Schedule disabled.")
				}
				return nil
			}
		}
		return fmt.Errorf("schedule %s not found", id)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	app, err := buildApp(logger)
	if err != nil {
		return err
	}
	defer app.close()

	// Self-install the LaunchAgent so the monitor survives logins.
	launchd := infra.NewLaunchdManager()
	if !launchd.IsInstalled() {
		if execPath, perr := os.Executable(); perr == nil {
			if ierr := launchd.Install(execPath); ierr != nil {
				logger.Warn("could not install LaunchAgent", zap.Error(ierr))
			} else {
				logger.Info("installed LaunchAgent", zap.String("plist", launchd.PlistPath()))
			}
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Surface device state changes and schedule failures in the log.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update := <-app.orchestrator.Updates():
				logger.Info("device state changed",
					zap.String("reason", update.Reason),
					zap.Bool("shifted", update.Snapshot.IsShifted))
			case failure := <-app.engine.Failures():
				logger.Error("scheduled action failed",
					zap.String("schedule", failure.Rule.ID.String()),
					zap.String("action", string(failure.Rule.Action)),
					zap.Error(failure.Err))
			}
		}
	}()

	if _, err := app.orchestrator.Detect(ctx); err != nil {
		logger.Warn("initial device detection failed", zap.Error(err))
	}

	err = app.engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("shiftd %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	}
}

func createLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{viper.GetString("log_path")}
	config.ErrorOutputPaths = []string{viper.GetString("log_path")}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func parseAction(s string) (domain.ScheduleAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shift":
		return domain.ActionShift, nil
	case "unshift":
		return domain.ActionUnshift, nil
	default:
		return "", fmt.Errorf("invalid action %q (want shift or unshift)", s)
	}
}

func parseTimeOfDay(s string) (domain.TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return domain.TimeOfDay{}, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return domain.TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return domain.TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return domain.TimeOfDay{Hour: hour, Minute: minute}, nil
}

var dayNames = map[string]domain.Weekday{
	"sun": domain.Sunday, "mon": domain.Monday, "tue": domain.Tuesday,
	"wed": domain.Wednesday, "thu": domain.Thursday, "fri": domain.Friday,
	"sat": domain.Saturday,
}

func parseDays(s string) ([]domain.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "everyday":
		return []domain.Weekday{
			domain.Sunday, domain.Monday, domain.Tuesday, domain.Wednesday,
			domain.Thursday, domain.Friday, domain.Saturday,
		}, nil
	case "weekdays":
		return []domain.Weekday{
			domain.Monday, domain.Tuesday, domain.Wednesday,
			domain.Thursday, domain.Friday,
		}, nil
	case "weekends":
		return []domain.Weekday{domain.Saturday, domain.Sunday}, nil
	}

	var days []domain.Weekday
	seen := make(map[domain.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if len(name) > 3 {
			name = name[:3]
		}
		day, ok := dayNames[name]
		if !ok {
			return nil, fmt.Errorf("invalid day %q", part)
		}
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no days given")
	}
	return days, nil
}
