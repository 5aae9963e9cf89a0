package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/usecase"
)

func newCampaignHandler() (*CampaignHandler, *MockCampaignCreator, *MockCampaignUpdater, *MockCampaignReader) {
	c, u, q := new(MockCampaignCreator), new(MockCampaignUpdater), new(MockCampaignReader)
	return NewCampaignHandler(c, u, q, nil), c, u, q
}

// TestCreateCampaignHandlerSuccess - answers 201 with the stored campaign
func TestCreateCampaignHandlerSuccess(t *testing.T) {
	h, creator, _, _ := newCampaignHandler()
	creator.On("Execute", mock.Anything, usecase.CreateCampaignInput{
		Name:     "Q2 outreach",
		LeadIDs:  []string{"l1", "l2"},
		Category: "proposal",
	}).Return(&entity.Campaign{ID: "camp-1", Name: "Q2 outreach", Status: entity.CampaignStatusDraft, TotalRecipients: 2}, nil)

	body, _ := json.Marshal(map[string]any{"name": "Q2 outreach", "lead_ids": []string{"l1", "l2"}, "category": "proposal"})
	req := httptest.NewRequest(http.MethodPost, "/api/email-campaigns", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var got entity.Campaign
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "camp-1", got.ID)
	assert.Equal(t, entity.CampaignStatusDraft, got.Status)
	creator.AssertExpectations(t)
}

func TestCreateCampaignHandlerInvalidJSON(t *testing.T) {
	h, creator, _, _ := newCampaignHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/email-campaigns", bytes.NewBufferString("{invalid"))
	w := httptest.NewRecorder()
	h.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, w).Error)
	creator.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestCreateCampaignHandlerDomainErrors(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{usecase.CodeValidation, http.StatusBadRequest},
		{usecase.CodeNoValidLeads, http.StatusNotFound},
		{usecase.CodeTemplateNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h, creator, _, _ := newCampaignHandler()
			creator.On("Execute", mock.Anything, mock.Anything).Return(nil, &usecase.DomainError{Code: tt.code, Message: "nope"})

			req := httptest.NewRequest(http.MethodPost, "/api/email-campaigns", bytes.NewBufferString(`{"name":"x"}`))
			w := httptest.NewRecorder()
			h.Create(w, req)

			assert.Equal(t, tt.want, w.Code)
			res := decodeError(t, w)
			assert.Equal(t, tt.code, res.Error)
			assert.Equal(t, "nope", res.Message)
		})
	}
}

func TestUpdateCampaignHandler(t *testing.T) {
	t.Run("locked campaign", func(t *testing.T) {
		h, _, updater, _ := newCampaignHandler()
		updater.On("Execute", mock.Anything, "camp-1", mock.Anything).
			Return(nil, &usecase.DomainError{Code: usecase.CodeCampaignLocked, Message: "campaign can only be edited while draft or scheduled"})

		req := withURLParam(httptest.NewRequest(http.MethodPut, "/api/email-campaigns/camp-1", bytes.NewBufferString(`{"name":"New"}`)), "id", "camp-1")
		w := httptest.NewRecorder()
		h.Update(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, usecase.CodeCampaignLocked, decodeError(t, w).Error)
	})

	t.Run("passes optional fields", func(t *testing.T) {
		h, _, updater, _ := newCampaignHandler()
		updater.On("Execute", mock.Anything, "camp-1", mock.MatchedBy(func(in usecase.UpdateCampaignInput) bool {
			return in.Name != nil && *in.Name == "New" && in.Subject == nil && in.Content != nil && *in.Content == ""
		})).Return(&entity.Campaign{ID: "camp-1", Name: "New"}, nil)

		req := withURLParam(httptest.NewRequest(http.MethodPut, "/api/email-campaigns/camp-1", bytes.NewBufferString(`{"name":"New","content":""}`)), "id", "camp-1")
		w := httptest.NewRecorder()
		h.Update(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		updater.AssertExpectations(t)
	})
}

func TestCampaignStatsHandler(t *testing.T) {
	h, _, _, reader := newCampaignHandler()
	reader.On("Stats", mock.Anything, "camp-1").Return(&usecase.CampaignWithStats{
		Campaign: &entity.Campaign{ID: "camp-1"},
		Stats:    entity.CampaignStats{Total: 10, Sent: 8, Failed: 1, Bounced: 1, Opened: 4, Clicked: 2},
	}, nil)
	reader.On("Stats", mock.Anything, "ghost").Return(nil, &usecase.DomainError{Code: usecase.CodeCampaignNotFound, Message: "campaign not found"})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/email-campaigns/camp-1/stats", nil), "id", "camp-1")
	w := httptest.NewRecorder()
	h.Stats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.EqualValues(t, 10, body["stats"]["total_emails"])
	assert.EqualValues(t, 2, body["stats"]["clicked"])

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/api/email-campaigns/ghost/stats", nil), "id", "ghost")
	w = httptest.NewRecorder()
	h.Stats(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCampaignHandler(t *testing.T) {
	h, _, _, reader := newCampaignHandler()
	reader.On("Get", mock.Anything, "camp-1").Return(&entity.Campaign{ID: "camp-1", Status: entity.CampaignStatusCompleted, EmailsSent: 3}, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/email-campaigns/camp-1", nil), "id", "camp-1")
	w := httptest.NewRecorder()
	h.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var got entity.Campaign
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, 3, got.EmailsSent)
}

// TestCampaignHistoryHandler - pages a campaign's send records and validates
// the paging parameters
func TestCampaignHistoryHandler(t *testing.T) {
	t.Run("returns the page", func(t *testing.T) {
		h, _, _, reader := newCampaignHandler()
		reader.On("History", mock.Anything, "camp-1", 2, 10).Return(&usecase.CampaignHistoryPage{
			History: []*entity.EmailHistory{
				{ID: "h1", CampaignID: "camp-1", LeadID: "lead-a", Status: entity.EmailStatusOpened, Content: "<html>secret</html>", UnsubscribeToken: "tok"},
			},
			Pagination: usecase.Pagination{CurrentPage: 2, TotalPages: 2, TotalItems: 11, ItemsPerPage: 10},
		}, nil)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/email-campaigns/camp-1/history?page=2&limit=10", nil), "id", "camp-1")
		w := httptest.NewRecorder()
		h.History(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "secret")
		assert.NotContains(t, w.Body.String(), `"tok"`)

		var body struct {
			History    []map[string]any   `json:"history"`
			Pagination usecase.Pagination `json:"pagination"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Len(t, body.History, 1)
		assert.Equal(t, "h1", body.History[0]["id"])
		assert.Equal(t, "opened", body.History[0]["status"])
		assert.Equal(t, 11, body.Pagination.TotalItems)
		reader.AssertExpectations(t)
	})

	t.Run("defaults when params are absent", func(t *testing.T) {
		h, _, _, reader := newCampaignHandler()
		reader.On("History", mock.Anything, "camp-1", 0, 0).Return(&usecase.CampaignHistoryPage{History: []*entity.EmailHistory{}}, nil)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/email-campaigns/camp-1/history", nil), "id", "camp-1")
		w := httptest.NewRecorder()
		h.History(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		reader.AssertExpectations(t)
	})

	t.Run("bad page", func(t *testing.T) {
		h, _, _, reader := newCampaignHandler()
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/email-campaigns/camp-1/history?page=-1", nil), "id", "camp-1")
		w := httptest.NewRecorder()
		h.History(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Error)
		reader.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		h, _, _, reader := newCampaignHandler()
		reader.On("History", mock.Anything, "ghost", 0, 0).Return(nil, &usecase.DomainError{Code: usecase.CodeCampaignNotFound, Message: "campaign not found"})

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/email-campaigns/ghost/history", nil), "id", "ghost")
		w := httptest.NewRecorder()
		h.History(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
