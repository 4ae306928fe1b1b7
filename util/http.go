package util

import (
	"github.com/hetianyi/gox/logger"
	json "github.com/json-iterator/go"
	"net/http"
	"strconv"
)

func HttpFileNotFoundError(w http.ResponseWriter) {
	HttpWriteResponse(w, http.StatusNotFound, "Not Found.")
}

func HttpInternalServerError(w http.ResponseWriter, message string) {
	HttpWriteResponse(w, http.StatusInternalServerError, message)
}

// HttpWriteResponse writes error response.
func HttpWriteResponse(writer http.ResponseWriter, statusCode int, message string) {
	writer.WriteHeader(statusCode)
	writer.Write([]byte(strconv.Itoa(statusCode) + " " + message))
}

// HttpWriteJSON writes v as a json response.
func HttpWriteJSON(writer http.ResponseWriter, statusCode int, v interface{}) {
	bs, err := json.Marshal(v)
	if err != nil {
		logger.Debug(err)
		HttpInternalServerError(writer, "Internal Server Error.")
		return
	}
	writer.Header().Set("Content-Type", "application/json;charset=UTF-8")
	writer.WriteHeader(statusCode)
	writer.Write(bs)
}
