package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/casedesk/pkg/storage"
)

func TestStorageEndpoints(t *testing.T) {
	t.Run("admin lists buckets", func(t *testing.T) {
		objStore := newFakeObjStore()
		objStore.buckets["case-files"] = true
		router := newTestRouter(adminPrincipal(), NewStorageHandlers(objStore, nil))

		rec := doJSON(t, router, http.MethodGet, "/storage/buckets", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var buckets []storage.BucketInfo
		decodeData(t, rec, &buckets)
		require.Len(t, buckets, 1)
		assert.Equal(t, "case-files", buckets[0].Name)
	})

	t.Run("admin creates a bucket", func(t *testing.T) {
		objStore := newFakeObjStore()
		router := newTestRouter(adminPrincipal(), NewStorageHandlers(objStore, nil))

		rec := doJSON(t, router, http.MethodPost, "/storage/buckets", map[string]string{"name": "evidence"})

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, objStore.buckets["evidence"])
	})

	t.Run("non-admin bucket access is forbidden", func(t *testing.T) {
		objStore := newFakeObjStore()
		router := newTestRouter(institutionPrincipal(1), NewStorageHandlers(objStore, nil))

		rec := doJSON(t, router, http.MethodGet, "/storage/buckets", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = doJSON(t, router, http.MethodPost, "/storage/buckets", map[string]string{"name": "sneaky"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, objStore.buckets)
	})

	t.Run("bucket name is required", func(t *testing.T) {
		router := newTestRouter(adminPrincipal(), NewStorageHandlers(newFakeObjStore(), nil))

		rec := doJSON(t, router, http.MethodPost, "/storage/buckets", map[string]string{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
