// Package tray runs the system tray icon and menu.
package tray

import (
	"github.com/getlantern/systray"

	"github.com/lightwhite-top/VoiceCoding/internal/orchestrator"
)

// Handlers are invoked from menu clicks. OnQuit runs after the tray has
// been told to exit.
type Handlers struct {
	OnSettings func()
	OnReload   func()
	OnReset    func()
	OnQuit     func()
}

// Run blocks serving the tray loop. Must be called from the main
// goroutine; everything else starts from inside onReady.
func Run(h Handlers, onReady func()) {
	systray.Run(func() {
		setup(h)
		if onReady != nil {
			onReady()
		}
	}, h.OnQuit)
}

// Quit tears the tray down, unblocking Run.
func Quit() { systray.Quit() }

func setup(h Handlers) {
	systray.SetTitle("VoiceCoding")
	systray.SetTooltip(tooltipFor(orchestrator.StatusIdle))

	mSettings := systray.AddMenuItem("设置", "打开配置文件")
	mReload := systray.AddMenuItem("重新加载配置", "应用修改后的配置")
	mReset := systray.AddMenuItem("重置", "中止当前会话")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("退出", "退出程序")

	go func() {
		for {
			select {
			case <-mSettings.ClickedCh:
				if h.OnSettings != nil {
					h.OnSettings()
				}
			case <-mReload.ClickedCh:
				if h.OnReload != nil {
					h.OnReload()
				}
			case <-mReset.ClickedCh:
				if h.OnReset != nil {
					h.OnReset()
				}
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

// StatusNotifier mirrors session state into the tray tooltip.
type StatusNotifier struct{}

func (StatusNotifier) Notify(s orchestrator.Status) {
	systray.SetTooltip(tooltipFor(s.Kind))
}

func tooltipFor(k orchestrator.StatusKind) string {
	switch k {
	case orchestrator.StatusRecording:
		return "VoiceCoding · 录音中"
	case orchestrator.StatusTranscribing:
		return "VoiceCoding · 识别中"
	case orchestrator.StatusInjecting:
		return "VoiceCoding · 输入中"
	default:
		return "VoiceCoding · 按住热键说话"
	}
}
