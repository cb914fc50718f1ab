package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"tubewatch/internal/config"
	"tubewatch/internal/engine"
	"tubewatch/internal/feed"
	"tubewatch/internal/launchd"
	"tubewatch/internal/notify"
	"tubewatch/internal/presence"
	"tubewatch/internal/store"
	"tubewatch/internal/version"
	"tubewatch/internal/watcher"
	"tubewatch/internal/youtube"
)

func main() {
	app := &cli.Command{
		Name:    "tubewatch",
		Usage:   "Watch YouTube channels and notify about new uploads",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to config file (default ~/.config/tubewatch/config.yaml)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "Run the polling loop until interrupted",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runWatch(ctx, c, false)
				},
			},
			{
				Name:  "check",
				Usage: "Run a single check cycle and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runWatch(ctx, c, true)
				},
			},
			{
				Name:  "channels",
				Usage: "Manage the watched channel list",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Add a channel by id or URL",
						Arguments: []cli.Argument{
							&cli.StringArg{Name: "channel", UsageText: "channel id or URL"},
						},
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "Display name (default: resolved from the channel feed)"},
						},
						Action: channelsAdd,
					},
					{
						Name:  "remove",
						Usage: "Remove a channel",
						Arguments: []cli.Argument{
							&cli.StringArg{Name: "channel", UsageText: "channel id or URL"},
						},
						Action: channelsRemove,
					},
					{
						Name:   "list",
						Usage:  "List watched channels",
						Action: channelsList,
					},
					{
						Name:   "sync",
						Usage:  "Import your YouTube subscriptions (requires auth)",
						Action: channelsSync,
					},
				},
			},
			{
				Name:   "auth",
				Usage:  "Authenticate with YouTube for subscription sync",
				Action: runAuth,
			},
			{
				Name:  "videos",
				Usage: "List recently discovered videos",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "hours", Usage: "Time window in hours", Value: 24},
					&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: 50},
				},
				Action: videosList,
			},
			{
				Name:  "agent",
				Usage: "Manage the macOS launchd agent",
				Commands: []*cli.Command{
					{
						Name:  "install",
						Usage: "Install a launchd agent that runs `tubewatch check` periodically",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "label", Value: launchd.DefaultLabel, Usage: "launchd label"},
							&cli.IntFlag{Name: "interval-minutes", Value: 15, Usage: "interval minutes"},
							&cli.StringFlag{Name: "plist", Usage: "custom plist path (default ~/Library/LaunchAgents/<label>.plist)"},
						},
						Action: agentInstall,
					},
					{
						Name:  "uninstall",
						Usage: "Unload and remove the launchd agent",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "label", Value: launchd.DefaultLabel, Usage: "launchd label"},
							&cli.StringFlag{Name: "plist", Usage: "path to plist (default ~/Library/LaunchAgents/<label>.plist)"},
						},
						Action: agentUninstall,
					},
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Command) (config.Config, error) {
	path := c.String("config")
	if strings.TrimSpace(path) == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}

func openStore(cfg config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, err
	}
	return store.Open(cfg.DatabasePath)
}

func runWatch(ctx context.Context, c *cli.Command, once bool) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	policy, err := engine.ParsePolicy(cfg.NewChannelPolicy)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	fetcher := feed.NewClient(cfg.FetchTimeout(), cfg.MaxItemsPerChannel)
	eng := engine.New(st, fetcher, policy, cfg.ChannelMinInterval(), log)

	var sink notify.Sink
	if cfg.Notify() {
		sink = notify.NewDesktop(log)
	} else {
		sink = notify.NewLog(log)
	}

	var pres watcher.Presence
	if cfg.Presence.Enabled {
		browsers := cfg.Presence.Browsers
		if len(browsers) == 0 {
			browsers = presence.DefaultBrowsers
		}
		pres = presence.NewBrowserSignal(browsers, log)
	}

	w := watcher.New(watcher.Config{
		Interval:     cfg.Interval(),
		PresencePoll: cfg.PresencePoll(),
		FetchTimeout: cfg.FetchTimeout(),
		Workers:      cfg.Workers,
	}, st, eng, sink, pres, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		return w.RunOnce(ctx)
	}

	// SIGHUP asks for an immediate extra cycle without restarting the loop.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			w.Wake()
		}
	}()

	log.Info().Dur("interval", cfg.Interval()).Int("workers", cfg.Workers).
		Msg("tubewatch started")
	return w.Run(ctx)
}

func channelsAdd(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	raw := strings.TrimSpace(c.StringArg("channel"))
	if raw == "" {
		return errors.New("channel id or URL required")
	}
	id := youtube.ExtractChannelID(raw)
	if id == "" {
		return fmt.Errorf("cannot resolve %q to a channel id (expected UC... or a /channel/ URL)", raw)
	}

	name := strings.TrimSpace(c.String("name"))
	if name == "" {
		fetcher := feed.NewClient(cfg.FetchTimeout(), 1)
		if listing, err := fetcher.FetchLatest(ctx, id); err == nil {
			name = listing.ChannelTitle
		} else {
			log.Warn().Err(err).Msg("could not resolve display name from feed")
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.AddChannel(ctx, store.Channel{ID: id, DisplayName: name, AddedAt: time.Now().UTC()}); err != nil {
		if errors.Is(err, store.ErrChannelExists) {
			fmt.Printf("channel %s is already watched\n", id)
			return nil
		}
		return err
	}
	if name != "" {
		fmt.Printf("watching %s (%s)\n", name, id)
	} else {
		fmt.Printf("watching %s\n", id)
	}
	return nil
}

func channelsRemove(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	raw := strings.TrimSpace(c.StringArg("channel"))
	if raw == "" {
		return errors.New("channel id or URL required")
	}
	id := youtube.ExtractChannelID(raw)
	if id == "" {
		id = raw
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RemoveChannel(ctx, id); err != nil {
		if errors.Is(err, store.ErrChannelNotFound) {
			return fmt.Errorf("channel %s is not watched", id)
		}
		return err
	}
	fmt.Printf("removed %s\n", id)
	return nil
}

func channelsList(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	channels, err := st.Channels(ctx)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		fmt.Println("no channels watched yet, try `tubewatch channels add <url>`")
		return nil
	}
	for _, ch := range channels {
		last, checked, err := st.LastChecked(ctx, ch.ID)
		if err != nil {
			return err
		}
		when := "never checked"
		if checked {
			when = "last checked " + last.Local().Format("2006-01-02 15:04")
		}
		name := ch.DisplayName
		if name == "" {
			name = ch.ID
		}
		fmt.Printf("%-40s %-26s %s\n", name, ch.ID, when)
	}
	return nil
}

func channelsSync(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tokenPath, err := config.TokenPath()
	if err != nil {
		return err
	}
	tok, err := youtube.LoadToken(tokenPath)
	if err != nil {
		return err
	}

	subs := youtube.NewSubscriptionsService()
	remote, err := subs.FetchSubscriptions(ctx, tok.AccessToken)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now().UTC()
	external := make([]store.Channel, 0, len(remote))
	for _, ch := range remote {
		external = append(external, store.Channel{ID: ch.ID, DisplayName: ch.Title, AddedAt: now})
	}
	added, unchanged, err := st.Reconcile(ctx, external)
	if err != nil {
		return err
	}
	fmt.Printf("synced %d subscriptions: %d added, %d already watched\n",
		len(remote), len(added), len(unchanged))
	for _, ch := range added {
		fmt.Printf("  + %s (%s)\n", ch.DisplayName, ch.ID)
	}
	return nil
}

func runAuth(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := youtube.NewOAuthService(youtube.OAuthConfig{BaseURL: cfg.Auth.ServiceURL})
	if err != nil {
		return err
	}

	initResp, err := svc.Initiate(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Open this URL in your browser to authorize tubewatch:")
	fmt.Println()
	fmt.Println("  " + initResp.AuthURL)
	fmt.Println()
	fmt.Println("Waiting for authorization...")

	poll, err := svc.Poll(ctx, initResp.FlowID, 5*time.Minute)
	if err != nil {
		return err
	}

	tokenPath, err := config.TokenPath()
	if err != nil {
		return err
	}
	tok := youtube.Token{
		AccessToken:  poll.AccessToken,
		RefreshToken: poll.RefreshToken,
		ObtainedAt:   time.Now().UTC(),
	}
	if err := youtube.SaveToken(tokenPath, tok); err != nil {
		return err
	}
	fmt.Println("Authenticated. Run `tubewatch channels sync` to import your subscriptions.")
	return nil
}

func videosList(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	since := time.Now().Add(-time.Duration(c.Int("hours")) * time.Hour)
	videos, err := st.RecentVideos(ctx, since, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		fmt.Printf("no videos seen in the last %d hours\n", c.Int("hours"))
		return nil
	}
	for _, v := range videos {
		fmt.Printf("%s  %-50s %s\n", v.PublishedAt.Local().Format("2006-01-02 15:04"), v.Title, v.URL)
	}
	return nil
}

func agentInstall(ctx context.Context, c *cli.Command) error {
	exe, _ := os.Executable()
	if strings.TrimSpace(exe) == "" {
		return fmt.Errorf("cannot discover program path")
	}
	opt := launchd.InstallOptions{
		Label:           c.String("label"),
		IntervalMinutes: c.Int("interval-minutes"),
		ProgramPath:     exe,
		ProgramArgs:     []string{"check"},
		PlistPath:       c.String("plist"),
	}
	path, err := launchd.Install(opt)
	if err != nil {
		return err
	}
	fmt.Printf("launchd agent installed and loaded: %s\n", path)
	return nil
}

func agentUninstall(ctx context.Context, c *cli.Command) error {
	if err := launchd.Uninstall(c.String("label"), c.String("plist")); err != nil {
		return err
	}
	fmt.Println("launchd agent unloaded and removed")
	return nil
}
