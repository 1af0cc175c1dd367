package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
)

type redeemBody struct {
	Code  string     `json:"code" validate:"required,max=64,redeemcode"`
	Items []lineBody `json:"items" validate:"required,min=1,dive"`
}

type lineBody struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=99"`
}

func decode(t *testing.T, body string) *pkgerrors.Error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest redeemBody
	err := DecodeJSONBody(req, &dest)
	if err == nil {
		return nil
	}
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	return typed
}

func TestDecodeJSONBody(t *testing.T) {
	assert.Nil(t, decode(t, `{"code":"GC-1234","items":[{"quantity":2}]}`))

	err := decode(t, `{"code":"SAVE 10","items":[{"quantity":2}]}`)
	require.NotNil(t, err)
	assert.Equal(t, map[string]string{"code": "may only contain letters, digits, dashes and underscores"}, err.Details())

	err = decode(t, `{"code":"SAVE10","items":[{"quantity":120}]}`)
	require.NotNil(t, err)
	assert.Equal(t, map[string]string{"items[0].quantity": "must be at most 99"}, err.Details())

	err = decode(t, `{"code":"SAVE10","items":[]}`)
	require.NotNil(t, err)
	assert.Equal(t, map[string]string{"items": "must contain at least 1 item(s)"}, err.Details())
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"unknown field": `{"code":"A","items":[{"quantity":1}],"extra":true}`,
		"trailing":      `{"code":"A","items":[{"quantity":1}]}{"code":"B"}`,
		"wrong type":    `{"code":12,"items":[{"quantity":1}]}`,
		"too large":     `{"code":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotNil(t, decode(t, body))
		})
	}
}

func TestParsePage(t *testing.T) {
	cursor := pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()}.Encode()
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&cursor="+cursor, nil)
	page, err := ParsePage(req)
	require.NoError(t, err)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: cursor}, page)

	page, err = ParsePage(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, page.Limit)

	for _, query := range []string{"limit=0", "limit=abc", "limit=101", "cursor=forged"} {
		_, err := ParsePage(httptest.NewRequest(http.MethodGet, "/?"+query, nil))
		require.Error(t, err, query)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code(), query)
	}
}

func TestParseQueryBool(t *testing.T) {
	on, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?unreadOnly=true", nil), "unreadOnly")
	require.NoError(t, err)
	assert.True(t, on)

	off, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/", nil), "unreadOnly")
	require.NoError(t, err)
	assert.False(t, off)

	_, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?unreadOnly=maybe", nil), "unreadOnly")
	require.Error(t, err)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Ana Lopez", CleanText("  Ana \n\t Lopez ", 0))
	assert.Equal(t, "Jos", CleanText("José", 3))
	assert.Equal(t, "José", CleanText("José", 4))
	assert.Equal(t, "ab", CleanText("ab cd", 3))

	assert.Nil(t, CleanOptional(nil, 10))
	blank := "   "
	assert.Nil(t, CleanOptional(&blank, 10))
	note := " extra  spicy "
	assert.Equal(t, "extra spicy", *CleanOptional(&note, 0))
}
