package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kasuganosora/ucsmail/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriends_AddListRemove(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "Bob", "ABCD1234")
	path := fmt.Sprintf("/api/characters/%d/friends", e.bob.ID)

	w := e.do(http.MethodPost, path, tok, map[string]string{"name": "aLICE"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Alice", decode(t, w)["name"])
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, path, tok, map[string]string{"name": "troll", "kind": "ignore"}).Code)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, path, tok, map[string]string{"name": "Alice"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, path, tok, map[string]string{"name": "x", "kind": "enemy"}).Code)

	w = e.do(http.MethodGet, path, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"friends":[{"name":"Alice","online":false}],"ignored":["Troll"]}`, w.Body.String())

	require.Equal(t, http.StatusOK, e.do(http.MethodDelete, path+"?name=alice", tok, nil).Code)
	w = e.do(http.MethodGet, path, tok, nil)
	assert.JSONEq(t, `{"friends":[],"ignored":["Troll"]}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodDelete, path, tok, nil).Code)
}

func TestFriends_Forbidden(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "Bob", "ABCD1234")
	w := e.do(http.MethodGet, fmt.Sprintf("/api/characters/%d/friends", e.alice.ID), tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFriends_AddErrors(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "Bob", "ABCD1234")
	path := fmt.Sprintf("/api/characters/%d/friends", e.bob.ID)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, path, tok, map[string]string{"name": "Bo\u0000b"}).Code)

	require.NoError(t, e.db.Migrator().DropTable(&model.FriendEntry{}))
	w := e.do(http.MethodPost, path, tok, map[string]string{"name": "Alice"})
	assert.Equal(t, http.StatusInternalServerError, w.Code, "a store outage is not a conflict")
}
