package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexusrank/nexusrank-edge/internal/cache"
	"github.com/nexusrank/nexusrank-edge/internal/config"
	"github.com/nexusrank/nexusrank-edge/internal/logging"
	"github.com/nexusrank/nexusrank-edge/internal/proxy"
	"github.com/nexusrank/nexusrank-edge/internal/server"
	"github.com/nexusrank/nexusrank-edge/internal/server/routes"
	"github.com/nexusrank/nexusrank-edge/internal/version"
	"github.com/nexusrank/nexusrank-edge/internal/worker"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["backend"] = cfg.Global.CacheBackend
		fields["cache_version"] = cfg.Worker.CacheVersion
		fields["precache"] = len(cfg.Worker.Precache)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化运行时失败: %v\n", err)
		return 1
	}
	defer rt.Close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["origin"] = cfg.Global.Origin
	fields["backend"] = cfg.Global.CacheBackend
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	// 安装在后台进行，期间请求按未受控状态直接透传源站。
	go rt.install(ctx)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   cfg.Global.ListenPort,
	}).Info("Fiber 服务启动")

	if err := rt.app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort)); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// edgeRuntime 聚合一次启动所需的共享实例。
type edgeRuntime struct {
	storage      cache.Storage
	registration *worker.Registration
	worker       *worker.Worker
	app          *fiber.App
	logger       *logrus.Logger
}

// newRuntime 按“缓存存储 → 上游 client → worker → Fiber app”的顺序装配组件，
// 所有请求共享同一份存储与 client。
func newRuntime(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*edgeRuntime, error) {
	storage, err := cache.NewStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存存储失败: %w", err)
	}

	fetcher, err := server.NewUpstreamFetcher(server.NewUpstreamClient(cfg), cfg.Global.Origin)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	opts, err := worker.OptionsFromConfig(cfg)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	opts.Fetcher = fetcher
	opts.Storage = storage
	opts.Logger = logger
	w, err := worker.New(opts)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	registration := worker.NewRegistration(fetcher, logger)
	handler := proxy.NewHandler(registration, logger)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      proxy.NewForwarder(handler, logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	routes.RegisterWorkerRoutes(app, registration, storage, logger)

	return &edgeRuntime{
		storage:      storage,
		registration: registration,
		worker:       w,
		app:          app,
		logger:       logger,
	}, nil
}

// install 注册 worker，预缓存失败只记录日志。
func (rt *edgeRuntime) install(ctx context.Context) {
	result, err := rt.registration.Register(ctx, rt.worker)
	fields := logging.WorkerFields("register", rt.worker.Version())
	fields["cached"] = len(result.Cached)
	fields["failed"] = len(result.Failures)
	if err != nil {
		rt.logger.WithFields(fields).WithError(err).Warn("worker_register_incomplete")
		return
	}
	rt.logger.WithFields(fields).Info("worker_registered")
}

// Close 释放缓存存储。
func (rt *edgeRuntime) Close() error {
	return rt.storage.Close()
}

// printVersion 输出注入的版本 + 提交信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("nexusrank-edge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 NEXUSRANK_EDGE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("NEXUSRANK_EDGE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}
