package services

import (
	"context"
	"net"

	"go.uber.org/zap"
)

type hostResolver func(ctx context.Context, host string) ([]string, error)

// SourceVerifier gates inbound notifications on their origin. A provider
// with configured allow-list entries requires verification; entries are
// literal IPs or hostnames resolved at check time. The check runs before
// any parsing so spoofed traffic costs nothing.
type SourceVerifier struct {
	allowed map[string][]string // provider -> IPs or hostnames
	resolve hostResolver
	logger  *zap.Logger
}

func NewSourceVerifier(allowed map[string][]string, logger *zap.Logger) *SourceVerifier {
	return &SourceVerifier{
		allowed: allowed,
		resolve: func(ctx context.Context, host string) ([]string, error) {
			return net.DefaultResolver.LookupHost(ctx, host)
		},
		logger: logger,
	}
}

// Required reports whether the provider has origin verification enabled.
func (v *SourceVerifier) Required(provider string) bool {
	return len(v.allowed[provider]) > 0
}

// Allowed reports whether sourceAddress matches the provider's allow-list.
// sourceAddress may carry a port.
func (v *SourceVerifier) Allowed(ctx context.Context, provider, sourceAddress string) bool {
	host := sourceAddress
	if h, _, err := net.SplitHostPort(sourceAddress); err == nil {
		host = h
	}
	sourceIP := net.ParseIP(host)

	for _, entry := range v.allowed[provider] {
		if entry == host {
			return true
		}
		if ip := net.ParseIP(entry); ip != nil {
			if sourceIP != nil && ip.Equal(sourceIP) {
				return true
			}
			continue
		}
		// Hostname entry: compare against its current resolutions.
		addrs, err := v.resolve(ctx, entry)
		if err != nil {
			v.logger.Warn("allow-list hostname resolution failed",
				zap.String("provider", provider),
				zap.String("host", entry),
				zap.Error(err),
			)
			continue
		}
		for _, addr := range addrs {
			if resolved := net.ParseIP(addr); resolved != nil && sourceIP != nil && resolved.Equal(sourceIP) {
				return true
			}
		}
	}
	return false
}
