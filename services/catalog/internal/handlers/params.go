package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

func queryInt(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryIntPtr(r *http.Request, key string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return nil
	}
	return &n
}

func queryFloatPtr(r *http.Request, key string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get(key)), 64)
	if err != nil {
		return nil
	}
	return &f
}

// queryList accepts repeated keys and comma-separated values.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryPathInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(chi.URLParam(r, key))
	return n
}
