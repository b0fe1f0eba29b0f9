// Package router collects the HTTP routing table before it is wired into a
// mux, so routes can be registered by feature, logged as one table at
// startup, and wrapped with the right middleware depending on whether they
// face clients or operators.
package router

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pterm/pterm"

	"github.com/paddockhq/paddock/internal/logger"
)

type RouteInfo struct {
	Handler     http.HandlerFunc
	Description string
	Method      string
	Order       int
	IsProxy     bool
}

type RouteRegistry struct {
	routes   map[string]RouteInfo
	logger   logger.StyledLogger
	orderSeq int
}

func NewRouteRegistry(logger logger.StyledLogger) *RouteRegistry {
	return &RouteRegistry{
		routes:   make(map[string]RouteInfo),
		logger:   logger,
		orderSeq: 0,
	}
}

func (r *RouteRegistry) Register(route string, handler http.HandlerFunc, description string) {
	r.RegisterWithMethod(route, handler, description, http.MethodGet)
}

func (r *RouteRegistry) RegisterWithMethod(route string, handler http.HandlerFunc, description, method string) {
	r.registerWithMethod(route, handler, description, method, false)
}

// RegisterProxyRoute marks a route as client-facing. Proxy routes get the
// full security chain when wired; everything else runs on the admin budget.
func (r *RouteRegistry) RegisterProxyRoute(route string, handler http.HandlerFunc, description, method string) {
	r.registerWithMethod(route, handler, description, method, true)
}

func (r *RouteRegistry) registerWithMethod(route string, handler http.HandlerFunc, description, method string, isProxy bool) {
	r.routes[route] = RouteInfo{
		Handler:     handler,
		Description: description,
		Method:      method,
		Order:       r.orderSeq,
		IsProxy:     isProxy,
	}
	r.orderSeq++
}

// pattern builds the mux registration pattern. A method-qualified pattern
// makes the mux answer 405 for the wrong verb instead of running the handler.
func pattern(route string, info RouteInfo) string {
	if info.Method == "" {
		return route
	}
	return info.Method + " " + route
}

func (r *RouteRegistry) WireUp(mux *http.ServeMux) {
	for route, info := range r.routes {
		mux.HandleFunc(pattern(route, info), info.Handler)
	}
	r.logRoutesTable()
}

// WireUpWithSecurityChain wires routes with security middleware applied per
// route class: proxy routes get the whole chain, admin routes only the rate
// limiter. The provider is duck-typed so this package never imports the
// security adapters.
func (r *RouteRegistry) WireUpWithSecurityChain(mux *http.ServeMux, securityAdapters interface{}) {
	type securityAdapterProvider interface {
		CreateChainMiddleware() func(http.Handler) http.Handler
		CreateRateLimitMiddleware() func(http.Handler) http.Handler
	}

	adapters, hasAdapters := securityAdapters.(securityAdapterProvider)

	if !hasAdapters {
		r.WireUp(mux)
		return
	}

	for route, info := range r.routes {
		var handler http.Handler = info.Handler

		if info.IsProxy {
			handler = adapters.CreateChainMiddleware()(handler)
		} else {
			handler = adapters.CreateRateLimitMiddleware()(handler)
		}
		mux.Handle(pattern(route, info), handler)
	}
	r.logRoutesTable()
}

func (r *RouteRegistry) logRoutesTable() {
	if len(r.routes) == 0 {
		return
	}

	type routeEntry struct {
		path   string
		method string
		desc   string
		order  int
	}

	var entries []routeEntry
	for route, info := range r.routes {
		entries = append(entries, routeEntry{
			path:   route,
			method: info.Method,
			desc:   info.Description,
			order:  info.Order,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	tableData := [][]string{
		{"ROUTE", "METHOD", "DESCRIPTION"},
	}

	for _, entry := range entries {
		tableData = append(tableData, []string{
			entry.path,
			entry.method,
			entry.desc,
		})
	}

	r.logger.InfoWithCount("Registered web routes", len(entries))
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}

func (r *RouteRegistry) GetRoutes() map[string]RouteInfo {
	return r.routes
}
