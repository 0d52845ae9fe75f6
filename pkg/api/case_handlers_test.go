package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/cases"
)

func TestCaseEndpoints(t *testing.T) {
	t.Run("creates a case defaulting to open", func(t *testing.T) {
		svc := newFakeCaseService()
		router := newTestRouter(institutionPrincipal(1), NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodPost, "/cases", map[string]interface{}{
			"title": "Contract dispute",
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		var c cases.Case
		decodeData(t, rec, &c)
		assert.Equal(t, cases.StatusOpen, c.Status)
		assert.Equal(t, int64(1), c.InstitutionID, "defaults to the actor's institution")
		assert.Equal(t, "inst-1", c.CreatedBy)
	})

	t.Run("create without a title is rejected", func(t *testing.T) {
		router := newTestRouter(institutionPrincipal(1), NewCaseHandlers(newFakeCaseService(), nil))

		rec := doJSON(t, router, http.MethodPost, "/cases", map[string]interface{}{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list filters by status", func(t *testing.T) {
		svc := newFakeCaseService()
		svc.cases[1] = &cases.Case{ID: 1, InstitutionID: 1, Status: cases.StatusOpen}
		svc.cases[2] = &cases.Case{ID: 2, InstitutionID: 1, Status: cases.StatusClosed}
		svc.nextID = 2
		router := newTestRouter(institutionPrincipal(1), NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodGet, "/cases?status=open", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var list []*cases.Case
		decodeData(t, rec, &list)
		require.Len(t, list, 1)
		assert.Equal(t, cases.StatusOpen, list[0].Status)
	})

	t.Run("unknown status filter is rejected", func(t *testing.T) {
		router := newTestRouter(institutionPrincipal(1), NewCaseHandlers(newFakeCaseService(), nil))

		rec := doJSON(t, router, http.MethodGet, "/cases?status=limbo", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("institution list is scoped", func(t *testing.T) {
		svc := newFakeCaseService()
		svc.cases[1] = &cases.Case{ID: 1, InstitutionID: 1, Status: cases.StatusOpen}
		svc.cases[2] = &cases.Case{ID: 2, InstitutionID: 2, Status: cases.StatusOpen}
		svc.nextID = 2
		router := newTestRouter(institutionPrincipal(1), NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodGet, "/cases", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var list []*cases.Case
		decodeData(t, rec, &list)
		require.Len(t, list, 1)
		assert.Equal(t, int64(1), list[0].InstitutionID)
	})

	t.Run("case participant may read across institutions", func(t *testing.T) {
		svc := newFakeCaseService()
		arbitratorID := "arb-9"
		svc.cases[1] = &cases.Case{ID: 1, InstitutionID: 2, Status: cases.StatusOpen, ArbitratorID: &arbitratorID}
		svc.nextID = 1
		actor := &auth.Principal{ID: "arb-9", Role: auth.RoleArbitrator, IsActive: true}
		router := newTestRouter(actor, NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodGet, "/cases/1", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCaseStatusEndpoint(t *testing.T) {
	seed := func() *fakeCaseService {
		svc := newFakeCaseService()
		svc.cases[1] = &cases.Case{ID: 1, InstitutionID: 1, Status: cases.StatusOpen}
		svc.nextID = 1
		return svc
	}

	t.Run("arbitrator updates status", func(t *testing.T) {
		svc := seed()
		actor := &auth.Principal{ID: "arb-1", Role: auth.RoleArbitrator, IsActive: true}
		router := newTestRouter(actor, NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodPut, "/cases/1/status", map[string]string{"status": "resolved"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, cases.StatusResolved, svc.cases[1].Status)
	})

	t.Run("client may not update status", func(t *testing.T) {
		svc := seed()
		actor := &auth.Principal{ID: "c-1", Role: auth.RoleClient, IsActive: true}
		router := newTestRouter(actor, NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodPut, "/cases/1/status", map[string]string{"status": "closed"})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, cases.StatusOpen, svc.cases[1].Status)
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		svc := seed()
		router := newTestRouter(adminPrincipal(), NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodPut, "/cases/1/status", map[string]string{"status": "limbo"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("general update does not change status", func(t *testing.T) {
		svc := seed()
		router := newTestRouter(adminPrincipal(), NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodPut, "/cases/1", map[string]interface{}{
			"title":  "Renamed",
			"status": "closed",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, cases.StatusOpen, svc.cases[1].Status, "status changes only through the status endpoint")
	})
}

func TestCaseReportEndpoint(t *testing.T) {
	svc := newFakeCaseService()
	svc.cases[1] = &cases.Case{ID: 1, InstitutionID: 1, Status: cases.StatusOpen}
	svc.cases[2] = &cases.Case{ID: 2, InstitutionID: 1, Status: cases.StatusOpen}
	svc.cases[3] = &cases.Case{ID: 3, InstitutionID: 2, Status: cases.StatusClosed}
	svc.nextID = 3

	t.Run("institution report is scoped", func(t *testing.T) {
		router := newTestRouter(institutionPrincipal(1), NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodGet, "/cases/report", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var counts []cases.StatusCount
		decodeData(t, rec, &counts)
		require.Len(t, counts, 1)
		assert.Equal(t, cases.StatusOpen, counts[0].Status)
		assert.Equal(t, int64(2), counts[0].Count)
	})

	t.Run("admin report covers every institution", func(t *testing.T) {
		router := newTestRouter(adminPrincipal(), NewCaseHandlers(svc, nil))

		rec := doJSON(t, router, http.MethodGet, "/cases/report", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var counts []cases.StatusCount
		decodeData(t, rec, &counts)
		assert.Len(t, counts, 2)
	})
}
