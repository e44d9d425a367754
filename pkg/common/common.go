package common

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/KeynihAV/tradecore/pkg/logging"
)

type MyResponse struct {
	Body  interface{} `json:"body,omitempty"`
	Error string      `json:"error,omitempty"`
}

func RespJSONError(w http.ResponseWriter, status int, err error, resp string) {
	if err != nil {
		logging.Default().Error(err.Error())
	}
	w.WriteHeader(status)
	w.Header().Add("Content-Type", "application/json")
	respJSON, _ := json.Marshal(&MyResponse{
		Error: resp,
	})
	w.Write(respJSON)
}

func GetStructFromRequest(in interface{}, r *http.Request, w http.ResponseWriter) bool {
	body, err := ioutil.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		errTxt := fmt.Sprintf("request body read error: %v", body)
		RespJSONError(w, http.StatusBadRequest, err, errTxt)
		return false
	}

	err = json.Unmarshal(body, in)
	if err != nil {
		errTxt := fmt.Sprintf("json parsing error %v", err)
		RespJSONError(w, http.StatusBadRequest, err, errTxt)
		return false
	}
	return true
}

func WriteStructToResponse(in interface{}, w http.ResponseWriter) bool {
	w.Header().Set("Content-type", "application/json")
	respJson, err := json.Marshal(&MyResponse{
		Body: in,
	})

	if err != nil {
		errTxt := fmt.Sprintf("json marshal error: %v", err.Error())
		RespJSONError(w, http.StatusInternalServerError, err, errTxt)
		return false
	}
	w.Write(respJson)

	return true
}
