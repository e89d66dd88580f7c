package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type note struct {
	Reason string `json:"reason" binding:"max=10"`
}

func bind(body string, contentLength int64, optional bool) (bool, int) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.ContentLength = contentLength
	c.Request = req

	var n note
	ok := BindJSON(c, &n, optional)
	return ok, w.Code
}

func TestBindJSONOptionalBody(t *testing.T) {
	cases := []struct {
		name          string
		body          string
		contentLength int64
		optional      bool
		ok            bool
	}{
		{"vide avec longueur nulle", "", 0, true, true},
		{"vide en chunked", "", -1, true, true},
		{"vide requis", "", -1, false, false},
		{"json valide en chunked", `{"reason":"doublon"}`, -1, true, true},
		{"json invalide", `{"reason":`, -1, true, false},
		{"contrainte violée", `{"reason":"beaucoup trop long"}`, -1, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, code := bind(tc.body, tc.contentLength, tc.optional)
			assert.Equal(t, tc.ok, ok)
			if !tc.ok {
				assert.Equal(t, http.StatusBadRequest, code)
			}
		})
	}
}
