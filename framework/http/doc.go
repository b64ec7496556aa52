// Package http provides the request-scoped HTTP layer: a middleware that
// runs each request inside its own resource scope, plus thin request and
// response helpers for JSON APIs.
//
// # Scope middleware
//
// ScopeMiddleware acquires the declared resources before the handler runs
// and releases them after it returns, whatever the outcome.
//
//	mw := gohttp.NewScopeMiddleware(c, catalog,
//	    gohttp.WithInject("db.tx", "redis.conn"),
//	    gohttp.WithContextData(map[string]any{"tenant": "acme"}),
//	    gohttp.WithLogger(logger),
//	    gohttp.WithMetrics(mx),
//	)
//	r.Use(mw.Handler)
//
// Each request's scope context is seeded with http.request_id, http.method
// and http.path; the scope id is echoed in the X-Scope-ID response header.
// Inside a handler:
//
//	tx, err := gohttp.DepAs[*Tx](r, "db.tx")   // a declared resource
//	sctx := gohttp.ScopeCtx(r)                 // the scope context
//	rid, _ := sctx.Get("http.request_id")
//
// # Request
//
//	req := gohttp.NewRequest(r)
//
//	var payload struct {
//	    Name string `json:"name"`
//	}
//	if err := req.Bind(&payload); err != nil { ... }
//
//	name := req.Input("name", "default")
//	page := req.Query("page", "1")
//	id   := req.RouteParam("id")   // requires chi
//	tok  := req.BearerToken()
//
// # Response
//
//	res := gohttp.NewResponse(w)
//
//	res.JSON(200, data)          // raw JSON with status
//	res.Success(data)            // 200 {"data": ...}
//	res.Created(data)            // 201 {"data": ...}
//	res.NoContent()              // 204
//	res.Error(400, "bad input")  // {"message": "bad input"}
//	res.NotFound()               // 404 {"message": "Not found."}
//	res.ServerError()            // 500 {"message": "Server Error."}
package http
