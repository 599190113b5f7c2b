package server

import (
	"time"

	"gosock/config"
	"gosock/internal/conn"
)

// Options configure a Server.  Zero values take the config package
// defaults.
type Options struct {
	Host      string // listen IP; empty binds all IPv4 interfaces
	Port      int    // 0 picks an ephemeral port
	ReusePort bool
	Backlog   int

	MaxClients     int
	RecvBufSize    int
	SendBufSize    int
	DeadTime       time.Duration // negative disables liveness expiry, zero is the default
	FlushTime      time.Duration // <= 0 disables deadline flushes
	MaxMessageSize int
	WriteTimeout   time.Duration // negative waits forever, zero is the default
	TickInterval   time.Duration

	AcceptRate  float64 // accepts per second, 0 = unlimited
	AcceptBurst int

	// MaxAcceptFailures consecutive accept errors (out of descriptors
	// and the like) park the listener for AcceptCoolDown.
	MaxAcceptFailures int
	AcceptCoolDown    time.Duration
}

// OptionsFromConfig maps the process configuration onto server options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Host:           cfg.Host,
		Port:           cfg.LocalPort,
		ReusePort:      cfg.ReusePort,
		Backlog:        cfg.Backlog,
		MaxClients:     cfg.MaxClients,
		RecvBufSize:    cfg.RecvBufSize,
		SendBufSize:    cfg.SendBufSize,
		DeadTime:       cfg.ClientDeadTime,
		FlushTime:      cfg.ClientSendTime,
		MaxMessageSize: cfg.MaxMessageSize,
		WriteTimeout:   cfg.WriteTimeout,
		TickInterval:   cfg.TickInterval,
		AcceptRate:     cfg.AcceptRate,
		AcceptBurst:    cfg.AcceptBurst,
	}
}

func (o Options) withDefaults() Options {
	if o.Backlog <= 0 {
		o.Backlog = config.DefaultBacklog
	}
	if o.MaxClients <= 0 {
		o.MaxClients = config.DefaultMaxClients
	}
	if o.DeadTime == 0 {
		o.DeadTime = config.DefaultClientDeadTime
	}
	if o.RecvBufSize <= 0 {
		o.RecvBufSize = config.DefaultRecvBufSize
	}
	if o.SendBufSize <= 0 {
		o.SendBufSize = config.DefaultSendBufSize
	}
	if o.MaxMessageSize <= 0 || o.MaxMessageSize > o.RecvBufSize {
		o.MaxMessageSize = o.RecvBufSize
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = config.DefaultWriteTimeout
	}
	if o.TickInterval <= 0 {
		o.TickInterval = config.DefaultTickInterval
	}
	if o.AcceptBurst <= 0 {
		o.AcceptBurst = config.DefaultAcceptBurst
	}
	if o.MaxAcceptFailures <= 0 {
		o.MaxAcceptFailures = 8
	}
	if o.AcceptCoolDown <= 0 {
		o.AcceptCoolDown = time.Second
	}
	return o
}

func (o Options) connOptions() conn.Options {
	return conn.Options{
		RecvBufSize: o.RecvBufSize,
		SendBufSize: o.SendBufSize,
		Limits:      conn.Limits{DeadTime: o.DeadTime, FlushTime: o.FlushTime},
	}
}
