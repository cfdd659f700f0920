package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
	"github.com/lokutor-ai/voxrunner/pkg/config"
	"github.com/lokutor-ai/voxrunner/pkg/dispatch"
	"github.com/lokutor-ai/voxrunner/pkg/ipc"
	"github.com/lokutor-ai/voxrunner/pkg/jobexec"
	"github.com/lokutor-ai/voxrunner/pkg/logging"
	"github.com/lokutor-ai/voxrunner/pkg/metrics"
	"github.com/lokutor-ai/voxrunner/pkg/pool"
	"github.com/lokutor-ai/voxrunner/pkg/room"

	llmProvider "github.com/lokutor-ai/voxrunner/pkg/providers/llm"
	sttProvider "github.com/lokutor-ai/voxrunner/pkg/providers/stt"
	"github.com/lokutor-ai/voxrunner/pkg/providers/turndetector"
	ttsProvider "github.com/lokutor-ai/voxrunner/pkg/providers/tts"
	vadProvider "github.com/lokutor-ai/voxrunner/pkg/providers/vad"
)

// CLI is voxrunner's entrypoint, generalized from the teacher's single
// malgo-duplex-loop main.go into spec §6.4's three operator-facing modes
// plus the hidden re-exec entry a process-pool child runs under.
type CLI struct {
	Start   StartCmd   `cmd:"" help:"Run as a dispatch-connected worker, launching one subprocess per job."`
	Dev     DevCmd     `cmd:"" help:"Run a single session against the local microphone/speaker."`
	Connect ConnectCmd `cmd:"" help:"Attach one session directly to a room, bypassing dispatch."`
	Child   ChildCmd   `cmd:"" hidden:"" help:"internal: run as a pool-launched job-executor child."`

	LogDebug bool   `help:"Enable debug-level logging." default:"false"`
	LogFile  string `help:"Log file path (empty = stderr)."`
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("voxrunner"),
		kong.Description("voxrunner: a real-time voice-agent worker runtime."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxrunner: load config: %v\n", err)
		os.Exit(1)
	}
	if cli.LogDebug {
		cfg.LogDebug = true
	}
	if cli.LogFile != "" {
		cfg.LogFilePath = cli.LogFile
	}

	var rotation *logging.FileRotation
	if cfg.LogFilePath != "" {
		rotation = &logging.FileRotation{Path: cfg.LogFilePath}
	}
	logger, err := logging.NewZapLogger(cfg.LogDebug, rotation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxrunner: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	kctx.FatalIfErrorf(kctx.Run(cfg, logging.Logger(logger)))
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}

// buildDeps resolves the capability providers named by cfg's provider
// fields, mirroring the teacher's cmd/agent/main.go provider-selection
// switch statements, generalized onto agent.Deps and extended with the
// providers (Anthropic/Google LLM, Deepgram/AssemblyAI STT, turn
// detection) the rest of the pack contributes.
func buildDeps(cfg config.Config, m *metrics.Metrics) (agent.Deps, error) {
	var stt agent.STT
	switch cfg.STTProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return agent.Deps{}, fmt.Errorf("OPENAI_API_KEY must be set for openai STT")
		}
		stt = sttProvider.NewOpenAISTT(cfg.OpenAIKey, "whisper-1")
	case "deepgram":
		if cfg.DeepgramKey == "" {
			return agent.Deps{}, fmt.Errorf("DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		stt = sttProvider.NewDeepgramSTT(cfg.DeepgramKey)
	case "assemblyai":
		if cfg.AssemblyKey == "" {
			return agent.Deps{}, fmt.Errorf("ASSEMBLYAI_API_KEY must be set for assemblyai STT")
		}
		stt = sttProvider.NewAssemblyAISTT(cfg.AssemblyKey)
	case "groq":
		fallthrough
	default:
		if cfg.GroqKey == "" {
			return agent.Deps{}, fmt.Errorf("GROQ_API_KEY must be set for groq STT")
		}
		stt = sttProvider.NewGroqSTT(cfg.GroqKey, "")
	}

	var llm agent.LLM
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return agent.Deps{}, fmt.Errorf("OPENAI_API_KEY must be set for openai LLM")
		}
		llm = llmProvider.NewOpenAILLM(cfg.OpenAIKey, "gpt-4o")
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return agent.Deps{}, fmt.Errorf("ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		llm = llmProvider.NewAnthropicLLM(cfg.AnthropicKey, "claude-3-5-sonnet-20241022")
	case "google":
		if cfg.GoogleKey == "" {
			return agent.Deps{}, fmt.Errorf("GOOGLE_API_KEY must be set for google LLM")
		}
		llm = llmProvider.NewGoogleLLM(cfg.GoogleKey, "gemini-1.5-flash")
	case "groq":
		fallthrough
	default:
		if cfg.GroqKey == "" {
			return agent.Deps{}, fmt.Errorf("GROQ_API_KEY must be set for groq LLM")
		}
		llm = llmProvider.NewGroqLLM(cfg.GroqKey, "")
	}

	if cfg.LokutorKey == "" {
		return agent.Deps{}, fmt.Errorf("LOKUTOR_API_KEY must be set")
	}
	tts := ttsProvider.NewLokutorTTS(cfg.LokutorKey)
	vad := vadProvider.NewRMSVAD(0.02, 500*time.Millisecond)
	td := turndetector.NewHeuristic(0.5, agent.Language(cfg.Session.Language))

	return agent.Deps{STT: stt, LLM: llm, TTS: tts, VAD: vad, TurnDetector: td, Metrics: m}, nil
}

// defaultAgent builds the single root Agent these CLI modes run, the
// generalized equivalent of the teacher's hardcoded systemPrompt string.
func defaultAgent(cfg config.Config) *agent.Agent {
	prompt := "You are a helpful and concise voice assistant. Use short sentences suitable for speech."
	if cfg.Session.Language == config.LanguageEs {
		prompt = "Eres un asistente de voz util y conciso. Usa frases cortas adecuadas para el habla."
	}
	return agent.NewAgent(prompt)
}

// printEvents renders a session's event stream to the log, generalizing
// the teacher's console switch-on-EventType loop.
func printEvents(sess *agent.AgentSession, logger logging.Logger) {
	for ev := range sess.Events() {
		switch ev.Type {
		case agent.ErrorEvent:
			logger.Error("session event", "type", ev.Type, "data", ev.Data)
		default:
			logger.Info("session event", "type", ev.Type)
		}
	}
}

// StartCmd runs the worker: a warm process pool plus a dispatch-connected
// Worker that hands assignments to it, serving Prometheus metrics
// alongside (spec §4.1/§4.2).
type StartCmd struct {
	MetricsAddr string `help:"Address to serve Prometheus metrics on." default:":9090"`
}

func (c *StartCmd) Run(cfg config.Config, logger logging.Logger) error {
	if cfg.Worker.DispatchURL == "" {
		return fmt.Errorf("DISPATCH_URL must be set for start mode")
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("voxrunner: resolve executable: %w", err)
	}

	m := metrics.New("voxrunner")

	poolOpts := pool.Options{
		NumIdleProcesses:             cfg.Pool.NumIdleProcesses,
		MaxConcurrentInitializations: cfg.Pool.MaxConcurrentInitializations,
		ExecutorOptions: jobexec.Options{
			ChildPath:         exe,
			ChildArgs:         []string{"child"},
			PingInterval:      cfg.Worker.PingInterval,
			PingTimeout:       cfg.Worker.PingTimeout,
			HighPingThreshold: cfg.Worker.HighPingThreshold,
			InitializeTimeout: cfg.Pool.InitializeTimeout,
			CloseTimeout:      cfg.Pool.CloseTimeout,
			MemoryWarnMB:      cfg.JobExec.MemoryWarnMB,
			MemoryLimitMB:     cfg.JobExec.MemoryLimitMB,
			SampleEvery:       cfg.JobExec.SampleEvery,
			Logger:            logger,
			Metrics:           m,
		},
		LoggerOptions: ipc.LoggerOptions{Level: logLevel(cfg.LogDebug)},
		Logger:        logger,
		Metrics:       m,
	}

	p := pool.New(poolOpts)

	ctx, cancel := signalContext()
	defer cancel()
	p.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: c.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer srv.Close()

	w := dispatch.New(cfg.Worker, p, logger)
	runErr := w.Run(ctx)
	_ = p.Close()
	return runErr
}

func logLevel(debug bool) string {
	if debug {
		return "debug"
	}
	return "info"
}

// DevCmd runs one session against the local microphone/speaker, the
// direct generalization of the teacher's original main() body.
type DevCmd struct{}

func (c *DevCmd) Run(cfg config.Config, logger logging.Logger) error {
	m := metrics.New("voxrunner_dev")
	deps, err := buildDeps(cfg, m)
	if err != nil {
		return err
	}

	rm, err := room.NewLocalRoom(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return fmt.Errorf("voxrunner: open local room: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := rm.Connect(ctx, "", "", nil); err != nil {
		return fmt.Errorf("voxrunner: start local audio device: %w", err)
	}

	sess := agent.NewAgentSession(cfg.Session, rm, deps)
	go printEvents(sess, logger)

	if err := sess.Start(ctx, defaultAgent(cfg)); err != nil {
		return fmt.Errorf("voxrunner: start session: %w", err)
	}

	fmt.Println("voxrunner dev: listening on the local microphone, Ctrl+C to exit")
	<-ctx.Done()
	return sess.Close()
}

// ConnectCmd attaches one session directly to a remote room, for manual
// testing without a dispatch server in the loop (spec §6.4).
type ConnectCmd struct {
	URL   string `help:"Room signaling URL." required:""`
	Token string `help:"Room auth token." required:""`
}

func (c *ConnectCmd) Run(cfg config.Config, logger logging.Logger) error {
	m := metrics.New("voxrunner_connect")
	deps, err := buildDeps(cfg, m)
	if err != nil {
		return err
	}

	rm, err := room.NewWebRTCRoom()
	if err != nil {
		return fmt.Errorf("voxrunner: create webrtc room: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := rm.Connect(ctx, c.URL, c.Token, nil); err != nil {
		return fmt.Errorf("voxrunner: connect room: %w", err)
	}

	sess := agent.NewAgentSession(cfg.Session, rm, deps)
	go printEvents(sess, logger)

	if err := sess.Start(ctx, defaultAgent(cfg)); err != nil {
		return fmt.Errorf("voxrunner: start session: %w", err)
	}

	<-ctx.Done()
	return sess.Close()
}

// ChildCmd is the hidden re-exec target StartCmd's pool launches as a
// ChildPath: it speaks jobexec's IPC protocol over stdin/stdout and runs
// one AgentSession per startJobRequest (spec §4.3/§6).
type ChildCmd struct{}

// stdioRW adapts the process's stdin/stdout into the single io.ReadWriter
// ipc.NewCodec expects.
type stdioRW struct {
	r io.Reader
	w io.Writer
}

func (s stdioRW) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s stdioRW) Write(p []byte) (int, error) { return s.w.Write(p) }

func (c *ChildCmd) Run(cfg config.Config, logger logging.Logger) error {
	codec := ipc.NewCodec(stdioRW{r: os.Stdin, w: os.Stdout})

	newRoom := func() room.Room {
		rm, err := room.NewWebRTCRoom()
		if err != nil {
			// newRoom has no error return of its own (jobexec.Child's
			// contract); a room the job can't even construct means this
			// child process can't do its job, so it exits and lets the
			// parent's ping/init-timeout machinery notice and replace it.
			logger.Error("voxrunner: create webrtc room for job, exiting", "error", err)
			os.Exit(1)
		}
		return rm
	}

	entry := func(jc jobexec.JobContext) error {
		m := metrics.New("voxrunner_job")
		deps, err := buildDeps(cfg, m)
		if err != nil {
			return err
		}
		sess := agent.NewAgentSession(cfg.Session, jc.Rm, deps)
		if err := sess.Start(jc.Ctx, defaultAgent(cfg)); err != nil {
			return err
		}
		<-jc.Ctx.Done()
		return sess.Close()
	}

	child := jobexec.NewChild(codec, newRoom, entry, nil, logger)
	return child.Run(context.Background())
}
