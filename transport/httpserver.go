// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/cubefs/mdsd/admin"
	"github.com/cubefs/mdsd/proto"
	"github.com/cubefs/mdsd/session"
)

const (
	shutdownTimeout      = 10 * time.Second
	readRequestTimeout   = 30 * time.Second
	writeResponseTimeout = 30 * time.Second
)

// adminCaller adapts a bound session's parsed capabilities into the
// admin.Caller the command surface checks for tell/allow-all permission
// (spec §4.4 "Authority"). It is never built from a client-declared
// request field -- only from Session.Caps, which is populated by the
// §4.6 authorizer-verification handshake.
type adminCaller struct {
	allowAll bool
}

func (a adminCaller) AllowAll() bool { return a.allowAll }

// httpConnection adapts an HTTP request/response pair to the session
// binder's narrow Connection interface. Unary HTTP has no channel for a
// server-initiated push, so Send is unsupported; any preopen message
// queued for an HTTP-bound session will fail to drain and is logged.
type httpConnection struct {
	addr string
}

func (h httpConnection) Send(msg interface{}) error {
	return errNoServerPush
}

func (h httpConnection) Addr() string { return h.addr }

var errNoServerPush = errors.New("http connection cannot receive server-pushed messages")

// HTTPServer hosts the admin-socket-equivalent JSON command surface
// alongside the pprof profile handler, matching server/httpserver.go's
// rpc.MiddlewareHandlerWith(router, logHandler, profileHandler) layout.
type HTTPServer struct {
	surface  *admin.Surface
	verifier *session.Verifier
	sessions *session.Binder
	http     *http.Server
}

// NewHTTPServer wires the admin command surface to the real auth/session
// binder (spec §4.6): every command resolves its caller's capabilities
// from a verified, bound Session, never from a self-declared request
// field.
func NewHTTPServer(surface *admin.Surface, verifier *session.Verifier, sessions *session.Binder) *HTTPServer {
	return &HTTPServer{surface: surface, verifier: verifier, sessions: sessions}
}

func (h *HTTPServer) Serve(addr string) {
	ph := profile.NewProfileHandler(addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      rpc.MiddlewareHandlerWith(h.newRouter(), logProgressHandler{}, ph),
		ReadTimeout:  readRequestTimeout,
		WriteTimeout: writeResponseTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exits:", err)
		}
	}()
	h.http = srv
	log.Info("admin http server is running at:", addr)
}

func (h *HTTPServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	h.http.Shutdown(ctx)
}

// logProgressHandler adapts the request-logging middleware to rpc.ProgressHandler.
type logProgressHandler struct{}

func (logProgressHandler) Handler(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request)) {
	start := time.Now()
	next(w, r)
	log.Infof("%s %s %s", r.Method, r.URL.Path, time.Since(start))
}

func (h *HTTPServer) newRouter() *rpc.Router {
	rpc.POST("/command", h.runCommand, rpc.OptArgsBody())
	rpc.GET("/stats", h.stats, rpc.OptArgsQuery())
	return rpc.DefaultRouter
}

func (h *HTTPServer) stats(c *rpc.Context) {
	c.RespondStatus(http.StatusOK)
}

type commandRequest struct {
	Name     string                 `json:"name"`
	Args     map[string]interface{} `json:"args"`
	PeerType string                 `json:"peer_type"`
	GlobalID uint64                 `json:"global_id"`
	// Authorizer is a base64-encoded authorizer blob. When present it is
	// (re-)verified and the resulting session is found-or-created and
	// bound to this connection (spec §4.6 steps 1-4). When absent, the
	// caller must already own a session bound by a prior verified call;
	// otherwise it is treated as unauthenticated (no allow-all).
	Authorizer string `json:"authorizer"`
	Protocol   int32  `json:"protocol"`
}

// resolveCaller implements spec §4.6's handshake for the admin HTTP
// surface: verify the authorizer if one was presented, find-or-create the
// session, bind this connection to it, and use the session's *parsed*
// capabilities -- never a client-declared flag -- to decide allow-all.
func (h *HTTPServer) resolveCaller(c *rpc.Context, req commandRequest) admin.Caller {
	if h.verifier == nil || h.sessions == nil {
		return adminCaller{allowAll: false}
	}

	peerType := req.PeerType
	if peerType == "" {
		peerType = "admin"
	}
	key := session.Key{PeerType: peerType, GlobalID: proto.GlobalID(req.GlobalID)}

	if req.Authorizer != "" {
		raw, err := base64.StdEncoding.DecodeString(req.Authorizer)
		if err != nil {
			log.Warnf("admin command %s: malformed authorizer: %v", req.Name, err)
			return adminCaller{allowAll: false}
		}
		id, err := h.verifier.Verify(c.Request.Context(), session.ProtocolID(req.Protocol), false, raw)
		if err != nil {
			log.Warnf("admin command %s: authorizer verification failed: %v", req.Name, err)
			return adminCaller{allowAll: false}
		}
		sess := h.sessions.Accept(id)
		sess.BindConnection(httpConnection{addr: c.Request.RemoteAddr})
		return adminCaller{allowAll: sess.Caps.AllowAll}
	}

	sess, ok := h.sessions.Get(key)
	if !ok {
		return adminCaller{allowAll: false}
	}
	// the declared key alone proves nothing; the session must be bound to
	// this very connection by an earlier verified call.
	if con := sess.Connection(); con == nil || con.Addr() != c.Request.RemoteAddr {
		return adminCaller{allowAll: false}
	}
	return adminCaller{allowAll: sess.Caps.AllowAll}
}

func (h *HTTPServer) runCommand(c *rpc.Context) {
	var req commandRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.RespondStatus(http.StatusBadRequest)
		return
	}
	caller := h.resolveCaller(c, req)
	result, status := h.surface.Execute(c.Request.Context(), caller, req.Name, admin.Args(req.Args))
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(c.Writer).Encode(map[string]interface{}{
		"result": result,
		"status": status,
	})
}
