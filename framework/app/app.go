package app

import (
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/mlog"
	"go.uber.org/multierr"
)

// 节点全局状态
const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在初始化中
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

// 单例
var defaultApp = NewApp()

type Module interface {
	OnInit() error  // 初始化
	Destroy() error // 销毁, Run需要随之返回
	Run()           // 启动, 阻塞
	Name() string   // 名字
}

// DefaultApp 默认单例
func DefaultApp() *App {
	return defaultApp
}

// App 中的 modules 在初始化(通过 Run) 之后不能变更
type App struct {
	mods   []Module
	inited int // 已经初始化成功的模块数量
	state  atomic.Int32
	sig    chan os.Signal
	wg     sync.WaitGroup
}

func NewApp() *App {
	return &App{sig: make(chan os.Signal, 1)}
}

// GetState 获取状态
func (app *App) GetState() int32 {
	return app.state.Load()
}

func (app *App) start(mods ...Module) error {
	// 单个app不能启动两次
	if !app.state.CompareAndSwap(AppStateNone, AppStateInit) || len(app.mods) != 0 {
		return errs.Unknown.Printf("app mods cannot start twice")
	}
	mlog.Info("app starting up")
	app.mods = append(app.mods, mods...)
	// 模块初始化
	for _, mi := range app.mods {
		if err := mi.OnInit(); err != nil {
			return fmt.Errorf("module %v init error: %w", reflect.TypeOf(mi), err)
		}
		app.inited++
	}
	// 模块启动
	for _, mi := range app.mods {
		app.wg.Add(1)
		go run(mi, &app.wg)
	}
	app.state.Store(AppStateRun)
	mlog.Info("app started")
	return nil
}

func (app *App) stop() (err error) {
	mlog.Info("app stop begin")
	app.state.Store(AppStateStop)
	// 先进后出, 只销毁初始化成功的
	for i := app.inited - 1; i >= 0; i-- {
		mi := app.mods[i]
		mlog.Infof("app stop module %s", mi.Name())
		err = multierr.Append(err, destroy(mi))
	}
	app.wg.Wait()
	app.state.Store(AppStateNone)
	mlog.Info("app stopped")
	return err
}

func run(mi Module, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module run panic: %v\n%s", mi.Name(), r, debug.Stack())
		}
	}()
	mi.Run()
}

func destroy(mi Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module destroy panic: %v\n%s", mi.Name(), r, debug.Stack())
			err = fmt.Errorf("module %s destroy panic: %v", mi.Name(), r)
		}
	}()
	return mi.Destroy()
}

// Run 初始化并启动所有模块, 阻塞到收到SIGINT/SIGTERM或Stop, SIGHUP忽略.
// 返回初始化错误和所有模块的销毁错误
func (app *App) Run(mods ...Module) error {
	signal.Notify(app.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.sig)
	if err := app.start(mods...); err != nil {
		mlog.Errorf("app start failed: %v", err)
		return multierr.Append(err, app.stop())
	}
	for {
		sig := <-app.sig
		mlog.Infof("server closing down (signal: %v)", sig)
		if sig != syscall.SIGHUP {
			break
		}
	}
	return app.stop()
}

func (app *App) Stop() {
	select {
	case app.sig <- syscall.SIGTERM:
	default:
	}
}
