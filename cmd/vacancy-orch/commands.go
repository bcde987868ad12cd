package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/vacancy-verifier/internal/config"
	"github.com/hochfrequenz/vacancy-verifier/internal/credentials"
	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/extract"
	"github.com/hochfrequenz/vacancy-verifier/internal/resultstore"
	"github.com/hochfrequenz/vacancy-verifier/internal/schedule"
	"github.com/hochfrequenz/vacancy-verifier/internal/sites"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
	"github.com/hochfrequenz/vacancy-verifier/tui"
	"github.com/hochfrequenz/vacancy-verifier/web/api"
)

var (
	servePort       int
	runWriteBack    bool
	credentialsDir  string
	extractOutput   string
	verdictStatus   string
	verdictProperty string
	verdictLimit    int
	runsLimit       int
	watchURL        string
	watchTasks      string
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API and observer socket",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run TASKFILE",
		Short: "Verify the properties in a task file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().BoolVar(&runWriteBack, "write-back", false, "write statuses and verdicts back to the task file")
	rootCmd.AddCommand(runCmd)

	// credentials command
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Show the site credentials that would be used",
		RunE:  runCredentials,
	}
	credentialsCmd.Flags().StringVar(&credentialsDir, "dir", "", "credential directory (default from config)")
	rootCmd.AddCommand(credentialsCmd)

	// sites command
	sitesCmd := &cobra.Command{
		Use:   "sites",
		Short: "List the sites a run would visit",
		RunE:  runSites,
	}
	rootCmd.AddCommand(sitesCmd)

	// extract command
	extractCmd := &cobra.Command{
		Use:   "extract DOCUMENT",
		Short: "Extract properties from a document into a task file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "task file to write (default stdout)")
	rootCmd.AddCommand(extractCmd)

	// verdicts command
	verdictsCmd := &cobra.Command{
		Use:   "verdicts [ID]",
		Short: "List stored verdicts, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runVerdicts,
	}
	verdictsCmd.Flags().StringVar(&verdictStatus, "status", "", "filter by final status")
	verdictsCmd.Flags().StringVar(&verdictProperty, "property", "", "filter by property name")
	verdictsCmd.Flags().IntVar(&verdictLimit, "limit", 50, "maximum verdicts to list")
	rootCmd.AddCommand(verdictsCmd)

	// runs command
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent verification runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)

	// schedules command
	schedulesCmd := &cobra.Command{
		Use:   "schedules",
		Short: "List configured verification schedules",
		RunE:  runSchedules,
	}
	rootCmd.AddCommand(schedulesCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Observe a running server in the terminal",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchURL, "url", "", "observer socket URL (default from config)")
	watchCmd.Flags().StringVar(&watchTasks, "tasks", "", "task file the g key starts")
	rootCmd.AddCommand(watchCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	server := api.NewServer(api.Options{
		Engine:    a.engine,
		Results:   a.provider.Results,
		Sites:     a.registry,
		Extractor: a.provider.Extractor,
		Addr:      fmt.Sprintf("%s:%d", cfg.Web.Host, port),
		Logger:    logger,
	})
	defer server.Close()

	sched, err := schedule.New(cfg.Schedules, scheduledRun(a, server.Channel()), logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(ctx)
	})

	if cfg.Credentials.Watch {
		watcher, err := credentials.NewWatcher(a.loader)
		if err != nil {
			logger.Warn("credential directory not watched", "dir", cfg.Credentials.Dir, "error", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	g.Go(func() error {
		sched.Start(ctx)
		<-ctx.Done()
		a.engine.Stop()
		sched.Stop()
		a.engine.Wait()
		return nil
	})

	logger.Info("vacancy verifier serving", "mode", a.provider.Mode, "url", fmt.Sprintf("http://%s:%d", cfg.Web.Host, port))
	return g.Wait()
}

// scheduledRun verifies a schedule's task file and writes the outcome back
// so the next firing skips what is already done
func scheduledRun(a *app, ch *telemetry.Channel) schedule.RunFunc {
	return func(ctx context.Context, entry config.ScheduleEntry) error {
		tasks, err := extract.LoadTaskFile(entry.TaskFile)
		if err != nil {
			return err
		}
		if _, err := a.engine.Run(ctx, tasks, ch); err != nil {
			return err
		}
		return saveTaskFile(entry.TaskFile, tasks)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	tasks, err := extract.LoadTaskFile(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	ch := telemetry.NewChannel(telemetry.LogSink{Logger: logger}, telemetry.WithLogger(logger))
	summary, runErr := a.engine.Run(ctx, tasks, ch)
	ch.Close()

	printTasks(tasks)
	fmt.Printf("\n%s (%s)\n", summary.Message, summary.Duration().Round(time.Second))

	if runWriteBack {
		if err := saveTaskFile(args[0], tasks); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[0])
	}
	return runErr
}

func printTasks(tasks []*domain.PropertyTask) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROPERTY\tROOM\tSTATUS\tVERDICT\tSITES")
	for _, t := range tasks {
		verdict, siteCount := "-", 0
		if t.Result != nil {
			verdict = string(t.Result.FinalStatus)
			siteCount = len(t.Result.VerificationResults)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.PropertyName, orDash(t.RoomNumber), t.Status, verdict, siteCount)
	}
	w.Flush()
}

// saveTaskFile writes tasks in the format the extension names
func saveTaskFile(path string, tasks []*domain.PropertyTask) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(extract.TaskFile{Properties: tasks}); err != nil {
			return err
		}
		return f.Close()
	}
	if err := extract.WriteTasks(f, tasks); err != nil {
		return err
	}
	return f.Close()
}

func runCredentials(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Credentials.Dir
	if credentialsDir != "" {
		dir = config.ExpandPath(credentialsDir)
	}

	loader := credentials.NewLoader(dir, credentials.WithLogger(slog.Default()))
	source, ok := loader.Locate()
	if !ok {
		fmt.Printf("No credentials file in %s; runs use the demo sites.\n", dir)
		return nil
	}
	creds, err := loader.Load(source, true)
	if err != nil {
		var unavailable *credentials.SourceUnavailableError
		if errors.As(err, &unavailable) {
			return fmt.Errorf("credentials file unreadable: %w", err)
		}
		return err
	}

	fmt.Printf("Source: %s\n\n", source)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tURL\tUSERNAME\tNOTES")
	for _, c := range creds {
		url := c.URL
		if url == "" {
			url = sites.LookupURL(c.SiteName)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.SiteName, orDash(url), c.Username, orDash(c.Notes))
	}
	w.Flush()
	return nil
}

func runSites(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loader := credentials.NewLoader(cfg.Credentials.Dir, credentials.WithLogger(slog.Default()))
	registry := sites.NewRegistry(loader, slog.Default())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tURL\tACCESS")
	for _, s := range registry.Sites() {
		access := "public"
		if s.Authenticated() {
			access = "login"
		}
		url := s.URL
		if url == "" {
			url = "(manual)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, url, access)
	}
	w.Flush()
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	records, err := a.provider.Extractor.Extract(ctx, doc)
	if err != nil {
		return err
	}
	tasks := extract.ToTasks(records)

	if extractOutput == "" {
		return extract.WriteTasks(os.Stdout, tasks)
	}
	if err := saveTaskFile(extractOutput, tasks); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d properties to %s\n", len(tasks), extractOutput)
	return nil
}

func openResults(cfg *config.Config) (*resultstore.Store, error) {
	if _, err := os.Stat(cfg.General.DatabasePath); err != nil {
		return nil, fmt.Errorf("no result database at %s", cfg.General.DatabasePath)
	}
	return resultstore.New(cfg.General.DatabasePath)
}

func runVerdicts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openResults(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()

	if len(args) == 1 {
		v, err := store.GetVerdict(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", v.PropertyName, v.RoomNumber)
		fmt.Printf("Verdict:  %s\n", v.FinalStatus)
		fmt.Printf("Verified: %s (%s)\n", v.LastVerified.Local().Format(time.RFC3339), humanize.Time(v.LastVerified))
		if v.Notes != "" {
			fmt.Printf("Notes:    %s\n", v.Notes)
		}
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SITE\tSTATUS\tUPDATED\tNOTES")
		for _, r := range v.VerificationResults {
			updated := "-"
			if r.LastUpdated != nil {
				updated = r.LastUpdated.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.SiteName, r.Status, updated, orDash(r.Notes))
		}
		return w.Flush()
	}

	verdicts, err := store.ListVerdicts(ctx, resultstore.ListOptions{
		Status:   domain.FinalStatus(verdictStatus),
		Property: verdictProperty,
		Limit:    verdictLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROPERTY\tROOM\tVERDICT\tVERIFIED")
	for _, v := range verdicts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", shortID(v.ID), v.PropertyName, orDash(v.RoomNumber), v.FinalStatus, humanize.Time(v.LastVerified))
	}
	return w.Flush()
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openResults(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tOUTCOME\tVERIFIED\tSAVED\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\n", shortID(r.ID), humanize.Time(r.StartedAt),
			r.Duration().Round(time.Second), r.Outcome, r.Completed, r.Properties, r.Uploaded, r.UploadsFailed)
	}
	return w.Flush()
}

func runSchedules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Schedules) == 0 {
		fmt.Println("No schedules configured.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCRON\tTASK FILE\tNEXT")
	for _, e := range cfg.Schedules {
		next := "invalid"
		if sched, err := schedule.ParseCron(e.Cron); err == nil {
			next = humanize.RelTime(sched.Next(now), now, "ago", "from now")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Cron, e.TaskFile, next)
	}
	return w.Flush()
}

func runWatch(cmd *cobra.Command, args []string) error {
	url := watchURL
	if url == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		url = fmt.Sprintf("ws://%s:%d/ws", cfg.Web.Host, cfg.Web.Port)
	}

	var tasks []*domain.PropertyTask
	if watchTasks != "" {
		var err error
		if tasks, err = extract.LoadTaskFile(watchTasks); err != nil {
			return err
		}
	}

	client, err := tui.Dial(url)
	if err != nil {
		return err
	}
	defer client.Close()

	model := tui.NewModel(tui.ModelConfig{Conn: client, URL: url, Tasks: tasks})
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
