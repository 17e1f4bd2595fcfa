package main

import (
	"context"
	"embed"
	"flag"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/wailsapp/wails/v2"
	wlogger "github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/lotto-desk/bindings"
	"github.com/MJE43/lotto-desk/internal/app"
	"github.com/MJE43/lotto-desk/internal/config"
	"github.com/MJE43/lotto-desk/internal/logger"
)

//go:embed all:frontend/dist
var assets embed.FS

const (
	docsURL = "https://github.com/MJE43/lotto-desk/blob/main/README.md"
	repoURL = "https://github.com/MJE43/lotto-desk"
)

var (
	appCtx   context.Context
	appCtxMu sync.RWMutex
	dataDir  string
)

// buildWindowsOptions configures Windows-specific application settings
func buildWindowsOptions() *windows.Options {
	return &windows.Options{
		BackdropType: windows.Mica,
		Theme:        windows.SystemDefault,
		CustomTheme: &windows.ThemeSettings{
			DarkModeTitleBar:  windows.RGB(20, 24, 38),
			DarkModeTitleText: windows.RGB(226, 232, 240),
			DarkModeBorder:    windows.RGB(51, 65, 85),

			LightModeTitleBar:  windows.RGB(248, 250, 252),
			LightModeTitleText: windows.RGB(15, 23, 42),
			LightModeBorder:    windows.RGB(226, 232, 240),
		},
		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,
		DisablePinchZoom:     false,
		IsZoomControlEnabled: false,
		ZoomFactor:           1.0,
		WindowClassName:      "LottoDeskWindow",
		OnSuspend: func() {
			slog.Info("windows entering low power mode")
		},
		OnResume: func() {
			slog.Info("windows resuming from low power mode")
		},
	}
}

// buildMacOptions configures macOS-specific application settings
func buildMacOptions() *mac.Options {
	var aboutIcon []byte
	if iconData, err := assets.ReadFile("frontend/dist/assets/logo.png"); err == nil {
		aboutIcon = iconData
	}

	return &mac.Options{
		TitleBar: &mac.TitleBar{
			TitlebarAppearsTransparent: false,
			HideTitle:                  false,
			HideTitleBar:               false,
			FullSizeContent:            false,
			UseToolbar:                 false,
			HideToolbarSeparator:       true,
		},
		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,
		About: &mac.AboutInfo{
			Title: "Lotto Desk",
			Message: "Local lottery number picks, draw simulation and history statistics.\n\n" +
				"All history stays on this machine.",
			Icon: aboutIcon,
		},
	}
}

// buildLinuxOptions configures Linux-specific application settings
func buildLinuxOptions() *linux.Options {
	var windowIcon []byte
	if iconData, err := assets.ReadFile("frontend/dist/assets/logo.png"); err == nil {
		windowIcon = iconData
	}

	return &linux.Options{
		Icon:                windowIcon,
		WindowIsTranslucent: false,
		WebviewGpuPolicy:    linux.WebviewGpuPolicyAlways,
		ProgramName:         "lotto-desk",
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("LOTTO_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init(logger.Options{})
		logger.L().Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init(logger.Options{Level: logger.ParseLevel(cfg.App.LogLevel)})
	log.Info("starting lotto desk", "go", runtime.Version(), "backend", cfg.Storage.Backend, "predictor", cfg.Predictor.Kind)
	dataDir = cfg.App.DataDir

	rt, err := app.Build(context.Background(), cfg, log)
	if err != nil {
		log.Error("runtime init failed", "error", err)
		os.Exit(1)
	}
	desk := bindings.New(rt)

	startup := func(ctx context.Context) {
		setAppContext(ctx)
		if err := desk.Startup(ctx); err != nil {
			log.Error("http api failed to start", "error", err)
		} else if info := desk.GetAPIInfo(); info.Enabled {
			log.Info("http api ready", "url", info.URL)
		}
	}

	beforeClose := func(ctx context.Context) (prevent bool) {
		desk.Shutdown()
		setAppContext(nil)
		log.Info("application is closing")
		return false
	}

	err = wails.Run(&options.App{
		Title:             "Lotto Desk",
		Width:             1180,
		Height:            780,
		MinWidth:          960,
		MinHeight:         680,
		WindowStartState:  options.Normal,
		HideWindowOnClose: false,
		BackgroundColour:  &options.RGBA{R: 20, G: 24, B: 38, A: 255},

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		OnStartup:     startup,
		OnBeforeClose: beforeClose,
		OnShutdown: func(ctx context.Context) {
			if err := rt.Close(); err != nil {
				log.Warn("runtime close", "error", err)
			}
			log.Info("application shutdown complete")
		},

		Menu: buildAppMenu(desk),
		Bind: []interface{}{desk},

		LogLevel:           wlogger.INFO,
		LogLevelProduction: wlogger.ERROR,

		EnableDefaultContextMenu:         false,
		EnableFraudulentWebsiteDetection: false,

		ErrorFormatter: func(err error) any {
			if err == nil {
				return nil
			}
			return err.Error()
		},

		// Single Instance Lock - two windows would race on the history file
		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: "4b1e9a52-7d3c-4f08-a6e2-lotto-desk",
			OnSecondInstanceLaunch: func(data options.SecondInstanceData) {
				log.Info("second instance launch prevented", "args", data.Args)
			},
		},

		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop:     false,
			DisableWebViewDrop: true,
		},

		Windows: buildWindowsOptions(),
		Mac:     buildMacOptions(),
		Linux:   buildLinuxOptions(),
	})
	if err != nil {
		log.Error("wails run failed", "error", err)
		_ = rt.Close()
		os.Exit(1)
	}
	log.Info("application exited normally")
}

func buildAppMenu(desk *bindings.App) *menu.Menu {
	rootMenu := menu.NewMenu()

	if runtime.GOOS == "darwin" {
		if appMenu := menu.AppMenu(); appMenu != nil {
			rootMenu.Append(appMenu)
		}
	}

	fileMenu := menu.NewMenu()
	fileMenu.AddText("Open Data Directory", keys.CmdOrCtrl("o"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			openPathInExplorer(ctx, dataDir)
		})
	})
	fileMenu.AddText("Export History…", keys.CmdOrCtrl("e"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			exportHistory(ctx, desk)
		})
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.Quit(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("File", fileMenu))

	viewMenu := menu.NewMenu()
	viewMenu.AddText("Reload Frontend", keys.CmdOrCtrl("r"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.WindowReloadApp(ctx)
		})
	})
	viewMenu.AddText("Toggle Fullscreen", keys.Combo("f", keys.CmdOrCtrlKey, keys.ShiftKey), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			toggleFullscreen(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("View", viewMenu))

	helpMenu := menu.NewMenu()
	helpMenu.AddText("Documentation", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.BrowserOpenURL(ctx, docsURL)
		})
	})
	helpMenu.AddText("Project Repository", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.BrowserOpenURL(ctx, repoURL)
		})
	})
	rootMenu.Append(menu.SubMenu("Help", helpMenu))

	return rootMenu
}

func exportHistory(ctx context.Context, desk *bindings.App) {
	path, err := wruntime.SaveFileDialog(ctx, wruntime.SaveDialogOptions{
		DefaultFilename: "lotto-history.json",
		Filters:         []wruntime.FileFilter{{DisplayName: "JSON", Pattern: "*.json"}},
	})
	if err != nil || path == "" {
		return
	}
	doc, err := desk.ExportHistory()
	if err != nil {
		slog.Error("export history", "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		slog.Error("write export", "path", path, "error", err)
	}
}

func openPathInExplorer(ctx context.Context, path string) {
	if path == "" {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		slog.Warn("resolve path failed", "path", path, "error", err)
		abs = path
	}
	wruntime.BrowserOpenURL(ctx, fileURI(abs))
}

func fileURI(path string) string {
	clean := filepath.ToSlash(path)
	if runtime.GOOS == "windows" && len(clean) > 0 && clean[0] != '/' {
		clean = "/" + clean
	}
	u := url.URL{Scheme: "file", Path: clean}
	return u.String()
}

func toggleFullscreen(ctx context.Context) {
	if wruntime.WindowIsFullscreen(ctx) {
		wruntime.WindowUnfullscreen(ctx)
		return
	}
	wruntime.WindowFullscreen(ctx)
}

func setAppContext(ctx context.Context) {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()
	appCtx = ctx
}

func withAppContext(action func(context.Context)) {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()
	if ctx == nil {
		slog.Warn("application context not initialised; ignoring menu action")
		return
	}
	action(ctx)
}
