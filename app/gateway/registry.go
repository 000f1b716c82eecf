package gateway

import (
	"errors"
	"strings"
)

var ErrGatewayNotSupported = errors.New("gateway is not supported")

type Registry struct {
	gateways    map[string]Gateway
	defaultCode string
}

func NewRegistry(defaultCode string, gateways ...Gateway) *Registry {
	items := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		items[g.Code()] = g
	}
	defaultCode = strings.ToLower(strings.TrimSpace(defaultCode))
	if defaultCode == "" && len(gateways) > 0 {
		defaultCode = gateways[0].Code()
	}
	return &Registry{gateways: items, defaultCode: defaultCode}
}

func (r *Registry) Get(code string) (Gateway, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		code = r.defaultCode
	}
	gw, ok := r.gateways[code]
	if !ok {
		return nil, ErrGatewayNotSupported
	}
	return gw, nil
}

func (r *Registry) DefaultCode() string {
	return r.defaultCode
}
