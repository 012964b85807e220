package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"petrel/internal/analytics"
	"petrel/internal/approval"
	"petrel/internal/autocopy"
	"petrel/internal/cmdlog"
	"petrel/internal/config"
	"petrel/internal/follower"
	"petrel/internal/gen"
	"petrel/internal/governor"
	"petrel/internal/interactions"
	"petrel/internal/liker"
	"petrel/internal/logging"
	"petrel/internal/metrics"
	"petrel/internal/model"
	"petrel/internal/notify"
	"petrel/internal/platform"
	"petrel/internal/posting"
	"petrel/internal/queue"
	"petrel/internal/sched"
	"petrel/internal/session"
	"petrel/internal/store/agentstore"
	"petrel/internal/theme"
	"petrel/internal/util"
)

func main() {
	_ = godotenv.Load()
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	case "post":
		cmdPost()
	case "actions":
		cmdActions()
	case "pending":
		cmdPending()
	case "monitor":
		cmdMonitor()
	case "schedule":
		cmdSchedule()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: petrel <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./petrel.yaml")
	fmt.Println("  run         Run all enabled loops until interrupted")
	fmt.Println("  post        Generate and publish one post now")
	fmt.Println("  actions     Run one interaction-processing pass")
	fmt.Println("  pending     List posts awaiting approval")
	fmt.Println("  monitor     Show hourly action analytics")
	fmt.Println("  schedule    Show active-hours status")
}

func fatal(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	return cfg
}

// buildSession wires one account's client, queue, and profile into the
// registry.
func buildSession(ctx context.Context, cfg config.Config, reg *session.Registry) (*session.Session, error) {
	var client platform.Client = platform.NewHTTPClient(platform.Credentials{
		BearerToken:    cfg.Credentials.BearerToken,
		ConsumerKey:    cfg.Credentials.ConsumerKey,
		ConsumerSecret: cfg.Credentials.ConsumerSecret,
		AccessToken:    cfg.Credentials.AccessToken,
		AccessSecret:   cfg.Credentials.AccessSecret,
	})
	if cfg.Posting.DryRun {
		client = platform.NewDryRun(client)
	}
	profile, err := client.GetUserByUsername(ctx, cfg.Account.Username)
	if err != nil {
		if !cfg.Posting.DryRun {
			return nil, fmt.Errorf("resolve account profile: %w", err)
		}
		logging.Warn("dry_run_profile_stub", map[string]any{"username": cfg.Account.Username})
		profile = model.User{ID: "dry-run", Username: cfg.Account.Username}
	}
	sess := &session.Session{
		Username: cfg.Account.Username,
		Client:   client,
		Queue:    queue.New(),
		Profile:  profile,
	}
	reg.Put(sess)
	return sess, nil
}

func buildGenerator(cfg config.Config) gen.Generator {
	if cfg.Generation.Provider == "openai" {
		return gen.NewOpenAI(cfg.Generation)
	}
	return gen.Noop{}
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./petrel.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fatal(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./petrel.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	if err := cmdlog.Run("run", func() error { return runAgent(*cfgPath) }); err != nil {
		os.Exit(1)
	}
}

func runAgent(cfgPath string) error {
	cfg := loadConfig(cfgPath)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := agentstore.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	metrics.StartServer(cfg.Metrics.Addr)

	reg := session.NewRegistry()
	sess, err := buildSession(ctx, cfg, reg)
	if err != nil {
		return err
	}
	go sess.Queue.Run(ctx)
	defer sess.Queue.Close()

	gov := governor.New(cfg.Actions, cfg.ActiveHours, nil)
	generator := buildGenerator(cfg)

	var workflow *approval.Workflow
	postRunner := posting.NewRunner(cfg.Posting, sess, db, generator, nil)
	if cfg.Posting.ApprovalRequired {
		notifier := notify.NewSlack(cfg.Approval.SlackToken, cfg.Approval.SlackChannel)
		workflow = approval.New(db, notifier, postRunner.Publish, sess.Username,
			time.Duration(cfg.Approval.ExpiryHours)*time.Hour, nil)
		postRunner = posting.NewRunner(cfg.Posting, sess, db, generator, workflow)
		go func() { _ = workflow.RunLoop(ctx, time.Duration(cfg.Approval.PollIntervalMinutes)*time.Minute) }()
	}

	var loops []*sched.Loop
	if cfg.Posting.Enabled {
		loops = append(loops, postRunner.Loop())
	}
	if cfg.Actions.Enabled {
		ir := interactions.NewRunner(cfg.Actions, sess, db, gov, generator, cfg.Posting.MaxPostLength)
		poll := sched.NewLoop("interactions", sched.FixedDelay(time.Duration(cfg.Actions.PollIntervalSec)*time.Second), ir.RunOnce)
		poll.RunAtStart = true
		loops = append(loops, poll)
		go sched.RunWhile(ctx, "actions", ir.ProcessActions)
	}
	if cfg.AutoCopy.Enabled {
		cr, err := autocopy.NewRunner(ctx, cfg.AutoCopy, sess, db)
		if err != nil {
			return err
		}
		loops = append(loops, cr.Loop())
	}
	if cfg.AutoFollow.Enabled {
		fr, err := follower.NewRunner(ctx, cfg.AutoFollow, sess, db, nil)
		if err != nil {
			return err
		}
		loops = append(loops, fr.Loop())
	}
	if cfg.AutoLike.Enabled {
		lr, err := liker.NewRunner(ctx, cfg.AutoLike, sess, db, nil)
		if err != nil {
			return err
		}
		loops = append(loops, lr.Loop())
	}
	for _, l := range loops {
		l.Start(ctx)
	}
	logging.Info("agent_started", map[string]any{"username": sess.Username, "loops": len(loops), "dry_run": cfg.Posting.DryRun})

	<-ctx.Done()
	for _, l := range loops {
		l.Stop()
	}
	logging.Info("agent_stopped", nil)
	return nil
}

func cmdPost() {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	cfgPath := fs.String("config", "./petrel.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("post", func() error {
		cfg := loadConfig(*cfgPath)
		ctx := context.Background()
		db, err := agentstore.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		reg := session.NewRegistry()
		sess, err := buildSession(ctx, cfg, reg)
		if err != nil {
			return err
		}
		qctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go sess.Queue.Run(qctx)
		var workflow *approval.Workflow
		runner := posting.NewRunner(cfg.Posting, sess, db, buildGenerator(cfg), nil)
		if cfg.Posting.ApprovalRequired {
			notifier := notify.NewSlack(cfg.Approval.SlackToken, cfg.Approval.SlackChannel)
			workflow = approval.New(db, notifier, runner.Publish, sess.Username,
				time.Duration(cfg.Approval.ExpiryHours)*time.Hour, nil)
			runner = posting.NewRunner(cfg.Posting, sess, db, buildGenerator(cfg), workflow)
		}
		return runner.RunOnce(ctx)
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdActions() {
	fs := flag.NewFlagSet("actions", flag.ExitOnError)
	cfgPath := fs.String("config", "./petrel.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("actions", func() error {
		cfg := loadConfig(*cfgPath)
		ctx := context.Background()
		db, err := agentstore.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		reg := session.NewRegistry()
		sess, err := buildSession(ctx, cfg, reg)
		if err != nil {
			return err
		}
		qctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go sess.Queue.Run(qctx)
		gov := governor.New(cfg.Actions, cfg.ActiveHours, nil)
		ir := interactions.NewRunner(cfg.Actions, sess, db, gov, buildGenerator(cfg), cfg.Posting.MaxPostLength)
		return ir.RunOnce(ctx)
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdPending() {
	fs := flag.NewFlagSet("pending", flag.ExitOnError)
	cfgPath := fs.String("config", "./petrel.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}
	db, err := agentstore.Open(cfg.Storage.DBPath)
	if err != nil {
		fatal(err)
	}
	defer db.Close()
	w := approval.New(db, nil, nil, cfg.Account.Username,
		time.Duration(cfg.Approval.ExpiryHours)*time.Hour, nil)
	records, err := w.Pending(context.Background())
	if err != nil {
		fatal(err)
	}
	if len(records) == 0 {
		fmt.Println("No posts pending approval.")
		return
	}
	for _, r := range records {
		age := time.Since(r.CreatedAt).Round(time.Minute)
		fmt.Printf("%s  age=%s\n%s\n---\n", r.ID, age, r.Text)
	}
}

func cmdMonitor() {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	cfgPath := fs.String("config", "./petrel.yaml", "config path")
	hours := fs.Int("hours", 24, "lookback window in hours")
	_ = fs.Parse(os.Args[2:])
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}
	db, err := agentstore.Open(cfg.Storage.DBPath)
	if err != nil {
		fatal(err)
	}
	defer db.Close()
	now := time.Now().UTC()
	actions, err := db.LoadActionsRange(context.Background(), now.Add(-time.Duration(*hours)*time.Hour), now)
	if err != nil {
		fatal(err)
	}
	b := analytics.HourlyActions(actions)
	for _, k := range analytics.SortedBucketKeys(b) {
		fmt.Printf("%s -> %v\n", k.Format("2006-01-02 15:00"), b[k])
	}
	if len(b) == 0 {
		fmt.Println("No actions in window.")
	}
}

func cmdSchedule() {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	cfgPath := fs.String("config", "./petrel.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}
	gov := governor.New(cfg.Actions, cfg.ActiveHours, nil)
	now := time.Now()
	if gov.Active(now) {
		fmt.Println("Active now.")
		return
	}
	wait := gov.TimeUntilActive(now)
	fmt.Println("Inactive; next window in", util.FormatDuration(int(wait.Seconds())))
}
