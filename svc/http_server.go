package svc

import (
	"github.com/gorilla/mux"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/util"
	"github.com/hetianyi/gox/convert"
	"github.com/hetianyi/gox/logger"
	"net/http"
	"strings"
	"time"
)

const DEFAULT_LIST_LIMIT = 50

// History is the read side of the transfer journal.
type History interface {
	List(limit int) ([]*common.TransferRecord, error)
	Get(id string) (*common.TransferRecord, error)
}

type statusApi struct {
	handler *Handler
	history History
}

// NewStatusRouter builds the router of the status api.
// history may be nil when the journal is disabled.
func NewStatusRouter(handler *Handler, history History) *mux.Router {
	api := &statusApi{
		handler: handler,
		history: history,
	}
	r := mux.NewRouter()
	r.HandleFunc("/sessions", api.sessions).Methods("GET")
	r.HandleFunc("/transfers", api.transfers).Methods("GET")
	r.HandleFunc("/transfers/{id}", api.transfer).Methods("GET")
	return r
}

// StartStatusHttpServer starts the status http server.
func StartStatusHttpServer(c *common.ServerConfig, handler *Handler, history History) *http.Server {
	srv := &http.Server{
		Handler:           NewStatusRouter(handler, history),
		Addr:              c.BindAddress + ":" + convert.IntToStr(c.HttpPort),
		ReadHeaderTimeout: time.Second * 15,
		WriteTimeout:      0,
		ReadTimeout:       0,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	go func() {
		logger.Info("http server listening on ", c.BindAddress, ":", c.HttpPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(err)
		}
	}()
	return srv
}

func (a *statusApi) sessions(w http.ResponseWriter, r *http.Request) {
	util.HttpWriteJSON(w, http.StatusOK, a.handler.Sessions())
}

func (a *statusApi) transfers(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		util.HttpWriteResponse(w, http.StatusServiceUnavailable, "Journal Disabled.")
		return
	}
	limit := DEFAULT_LIST_LIMIT
	if l := strings.TrimSpace(r.URL.Query().Get("limit")); l != "" {
		n, err := convert.StrToInt(l)
		if err != nil || n <= 0 {
			util.HttpWriteResponse(w, http.StatusBadRequest, "Invalid Limit.")
			return
		}
		limit = n
	}
	records, err := a.history.List(limit)
	if err != nil {
		logger.Error("cannot list transfers: ", err)
		util.HttpInternalServerError(w, "Internal Server Error.")
		return
	}
	util.HttpWriteJSON(w, http.StatusOK, records)
}

func (a *statusApi) transfer(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		util.HttpWriteResponse(w, http.StatusServiceUnavailable, "Journal Disabled.")
		return
	}
	record, err := a.history.Get(mux.Vars(r)["id"])
	if err != nil {
		logger.Error("cannot read transfer: ", err)
		util.HttpInternalServerError(w, "Internal Server Error.")
		return
	}
	if record == nil {
		util.HttpFileNotFoundError(w)
		return
	}
	util.HttpWriteJSON(w, http.StatusOK, record)
}
