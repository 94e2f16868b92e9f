package client

import (
	"time"

	"curasure-chat/config"
)

type Options struct {
	History   HistoryLoader
	Directory Directory // nil 时显示占位信息
	Clock     Clock

	TypingTTL      time.Duration
	TypingThrottle time.Duration // 0 disables throttling
	DedupWindow    time.Duration
	HistoryTimeout time.Duration

	// OptimisticGroupSend inserts a local copy of group sends before the relay echo arrives.
	OptimisticGroupSend bool
}

func (o *Options) withDefaults() {
	if o.Clock == nil {
		o.Clock = RealClock
	}
	if o.History == nil {
		o.History = emptyHistory{}
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = DefaultTypingTTL
	}
	if o.TypingThrottle < 0 {
		o.TypingThrottle = 0
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = time.Second
	}
}

// OptionsFromConfig wires the HTTP collaborators from the client config.
func OptionsFromConfig(cfg config.ClientConfig) Options {
	return Options{
		History:             NewHTTPHistory(cfg.APIBaseURL, cfg.HistoryTimeout.Duration()),
		Directory:           NewHTTPDirectory(cfg.APIBaseURL, cfg.HistoryTimeout.Duration()),
		TypingTTL:           cfg.TypingTTL.Duration(),
		TypingThrottle:      cfg.TypingThrottle.Duration(),
		DedupWindow:         cfg.DedupWindow.Duration(),
		HistoryTimeout:      cfg.HistoryTimeout.Duration(),
		OptimisticGroupSend: cfg.OptimisticGroupSend,
	}
}
