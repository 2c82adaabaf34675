package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultAPIVersion = "v1"

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

// resource is one REST resource: its path prefix, any middleware scoped to
// it and its routes relative to the prefix.
type resource struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
}

func newResource(prefix string, mw ...gin.HandlerFunc) *resource {
	return &resource{prefix: prefix, middleware: mw}
}

func (r *resource) get(path string, h gin.HandlerFunc) *resource {
	return r.add(http.MethodGet, path, h)
}

func (r *resource) post(path string, h gin.HandlerFunc) *resource {
	return r.add(http.MethodPost, path, h)
}

func (r *resource) put(path string, h gin.HandlerFunc) *resource {
	return r.add(http.MethodPut, path, h)
}

func (r *resource) patch(path string, h gin.HandlerFunc) *resource {
	return r.add(http.MethodPatch, path, h)
}

func (r *resource) add(method, path string, h gin.HandlerFunc) *resource {
	r.routes = append(r.routes, route{method: method, path: path, handler: h})
	return r
}

// mount registers resources under /api/<version>.
func mount(engine *gin.Engine, version string, resources ...*resource) {
	if version == "" {
		version = defaultAPIVersion
	}
	api := engine.Group("/api/" + version)
	for _, res := range resources {
		g := api.Group(res.prefix, res.middleware...)
		for _, rt := range res.routes {
			g.Handle(rt.method, rt.path, rt.handler)
		}
	}
}
