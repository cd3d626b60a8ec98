// Copyright © 2018 One Concern

package remote

import (
	"net/http"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Option for the remote client
type Option func(*Client)

// Logger for the remote client
func Logger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.l = l
		}
	}
}

// Credentials sent with every request, as HTTP basic authentication
func Credentials(user, password string) Option {
	return func(c *Client) {
		c.user = user
		c.password = password
	}
}

// HTTPClient overrides the default HTTP client
func HTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// Timeout of each request. Zero means no timeout.
func Timeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// RateLimit sets a maximum number of requests per second, with some burst
func RateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// MaxUploadSize limits the size of uploaded contents, in bytes. Zero means no limit.
func MaxUploadSize(size int64) Option {
	return func(c *Client) {
		c.maxUpload = size
	}
}

// Registerer collects metrics about remote calls
func Registerer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = reg
	}
}

// Tracer records spans for remote calls. Defaults to the global tracer.
func Tracer(tr opentracing.Tracer) Option {
	return func(c *Client) {
		if tr != nil {
			c.tracer = tr
		}
	}
}
