// Package notify turns orchestrator status changes into desktop
// notifications.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/lightwhite-top/VoiceCoding/internal/orchestrator"
)

const appTitle = "VoiceCoding"

// Toaster sends a desktop toast per status change. Injecting is only
// logged; a toast at that moment could steal focus from the window the
// text is about to land in.
type Toaster struct{}

func New() *Toaster { return &Toaster{} }

func (t *Toaster) Notify(s orchestrator.Status) {
	switch s.Kind {
	case orchestrator.StatusRecording:
		show("开始录音")
	case orchestrator.StatusTranscribing:
		show("结束录音，开始识别")
	case orchestrator.StatusSuccess:
		show("已输入：" + preview(s.Text))
	case orchestrator.StatusError:
		show(reasonMessage(s.Reason))
	default:
		slog.Debug("status", "kind", s.Kind)
	}
}

func show(message string) {
	if err := beeep.Notify(appTitle, message, ""); err != nil {
		slog.Warn("notification failed", "error", err)
	}
}

// preview truncates the injected text for the toast body.
func preview(text string) string {
	const max = 60
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "…"
}

func reasonMessage(r orchestrator.Reason) string {
	switch r {
	case orchestrator.ReasonRegistration:
		return "热键注册失败，可能被其他程序占用"
	case orchestrator.ReasonDevice:
		return "无法打开麦克风"
	case orchestrator.ReasonAuth:
		return "讯飞鉴权失败，请检查密钥配置"
	case orchestrator.ReasonConnect:
		return "无法连接语音识别服务"
	case orchestrator.ReasonStream:
		return "语音识别中断"
	case orchestrator.ReasonNoSpeech:
		return "没有识别到语音"
	case orchestrator.ReasonWindowNotFound:
		return "找不到目标窗口"
	case orchestrator.ReasonInjection:
		return "发送错误"
	default:
		return "未知错误"
	}
}
