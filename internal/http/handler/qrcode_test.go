package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"doclocker/internal/apperr"
	"doclocker/internal/model"
	"doclocker/internal/service"
	serviceMocks "doclocker/internal/service/mocks"
)

const testQRID = "QR-7Hq2mVxKpL9sNcR4tYbW3a"

func TestCreateQRCode(t *testing.T) {
	mockSvc := new(serviceMocks.MockQRCodeService)
	app := newTestApp(testSupervisor)
	app.Post("/qrcodes", CreateQRCode(mockSvc))

	tests := []struct {
		name       string
		body       string
		setupMocks func()
		wantStatus int
		wantCode   string
	}{
		{
			name: "success",
			body: `{"document_id":"doc-1"}`,
			setupMocks: func() {
				mockSvc.On("Bind", mock.Anything, testSupervisor, "doc-1").
					Return(&model.QRBinding{QRID: testQRID, DocumentID: "doc-1", IsActive: true}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "already bound",
			body: `{"document_id":"doc-1"}`,
			setupMocks: func() {
				mockSvc.On("Bind", mock.Anything, testSupervisor, "doc-1").
					Return(nil, apperr.New(apperr.KindAlreadyBound, "document already has an active qr code")).Once()
			},
			wantStatus: http.StatusConflict,
			wantCode:   "ALREADY_BOUND",
		},
		{
			name:       "missing document id",
			body:       `{}`,
			setupMocks: func() {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "malformed body",
			body:       `{`,
			setupMocks: func() {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_BODY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMocks()

			req := httptest.NewRequest(http.MethodPost, "/qrcodes", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, _ := app.Test(req)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			} else {
				var b model.QRBinding
				json.NewDecoder(resp.Body).Decode(&b)
				assert.Equal(t, testQRID, b.QRID)
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestRegenerateQRCode(t *testing.T) {
	mockSvc := new(serviceMocks.MockQRCodeService)
	app := newTestApp(testSupervisor)
	app.Post("/qrcodes/regenerate", RegenerateQRCode(mockSvc))

	mockSvc.On("Regenerate", mock.Anything, testSupervisor, "doc-1").
		Return(&model.QRBinding{QRID: "QR-next", DocumentID: "doc-1", IsActive: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/qrcodes/regenerate", strings.NewReader(`{"document_id":"doc-1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var b model.QRBinding
	json.NewDecoder(resp.Body).Decode(&b)
	assert.Equal(t, "QR-next", b.QRID)
	mockSvc.AssertExpectations(t)
}

func TestGetQRCode(t *testing.T) {
	mockSvc := new(serviceMocks.MockQRCodeService)
	app := newTestApp(testUser)
	app.Get("/qrcodes/:qrId", GetQRCode(mockSvc))

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, testUser, testQRID).Return(&service.QRCodeDetails{
			Binding:  model.QRBinding{QRID: testQRID, DocumentID: "doc-1", IsActive: true},
			Document: service.DocumentSummary{ID: "doc-1", Title: "Pump manual"},
			ViewURL:  "http://locker.test/qrcodes/" + testQRID + "/view",
			Image:    "data:image/png;base64,AAAA",
		}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/qrcodes/"+testQRID, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var d service.QRCodeDetails
		json.NewDecoder(resp.Body).Decode(&d)
		assert.Equal(t, "Pump manual", d.Document.Title)
		assert.True(t, strings.HasPrefix(d.Image, "data:image/png;base64,"))
		mockSvc.AssertExpectations(t)
	})

	t.Run("unknown", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, testUser, "QR-missing").Return(nil, apperr.NotFound("qr code not found")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/qrcodes/QR-missing", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestViewQRCode(t *testing.T) {
	mockSvc := new(serviceMocks.MockQRCodeService)
	app := newTestApp(testUser)
	app.Get("/qrcodes/:qrId/view", ViewQRCode(mockSvc))

	byAgent := mock.MatchedBy(func(sc service.ScanContext) bool {
		return sc.UserAgent == "scanner/1.0" && sc.IP != ""
	})

	tests := []struct {
		name       string
		setupMocks func()
		wantStatus int
		wantCode   string
	}{
		{
			name: "success",
			setupMocks: func() {
				mockSvc.On("View", mock.Anything, testUser, testQRID, byAgent).Return(&service.ViewResult{
					QRID:        testQRID,
					Document:    &model.Document{ID: "doc-1", CurrentVersion: 2},
					Version:     model.Version{VersionNumber: 2},
					DownloadURL: "https://objects.test/doc-1/v2",
				}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "inactive",
			setupMocks: func() {
				mockSvc.On("View", mock.Anything, testUser, testQRID, byAgent).
					Return(nil, apperr.New(apperr.KindInactive, "qr code has been deactivated")).Once()
			},
			wantStatus: http.StatusGone,
			wantCode:   "INACTIVE",
		},
		{
			name: "forbidden",
			setupMocks: func() {
				mockSvc.On("View", mock.Anything, testUser, testQRID, byAgent).
					Return(nil, apperr.Forbidden("access denied")).Once()
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMocks()

			req := httptest.NewRequest(http.MethodGet, "/qrcodes/"+testQRID+"/view", nil)
			req.Header.Set("User-Agent", "scanner/1.0")
			resp, _ := app.Test(req)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			} else {
				var res service.ViewResult
				json.NewDecoder(resp.Body).Decode(&res)
				assert.Equal(t, 2, res.Version.VersionNumber)
				assert.NotEmpty(t, res.DownloadURL)
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestViewQRCode_ScanContextOutlivesRequest(t *testing.T) {
	mockSvc := new(serviceMocks.MockQRCodeService)
	app := newTestApp(testUser)
	app.Get("/qrcodes/:qrId/view", ViewQRCode(mockSvc))

	// Held the way the scan recorder holds them: past the end of the request.
	var captured []service.ScanContext
	mockSvc.On("View", mock.Anything, testUser, testQRID, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = append(captured, args.Get(3).(service.ScanContext))
		}).
		Return(&service.ViewResult{QRID: testQRID}, nil)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/qrcodes/"+testQRID+"/view", nil)
		req.Header.Set("User-Agent", fmt.Sprintf("scanner-agent-%d", i))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	require.Len(t, captured, 5)
	for i, sc := range captured {
		assert.Equal(t, fmt.Sprintf("scanner-agent-%d", i), sc.UserAgent)
		assert.NotEmpty(t, sc.IP)
	}
}

func TestDeactivateQRCode(t *testing.T) {
	mockSvc := new(serviceMocks.MockQRCodeService)
	app := newTestApp(testAdmin)
	app.Delete("/qrcodes/:qrId", DeactivateQRCode(mockSvc))

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Deactivate", mock.Anything, testAdmin, testQRID).Return(nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/qrcodes/"+testQRID, nil))

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("unknown", func(t *testing.T) {
		mockSvc.On("Deactivate", mock.Anything, testAdmin, "QR-missing").Return(apperr.NotFound("qr code not found")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/qrcodes/QR-missing", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestQRCodeStats(t *testing.T) {
	mockSvc := new(serviceMocks.MockQRCodeService)
	app := newTestApp(testSupervisor)
	app.Get("/qrcodes/:qrId/stats", QRCodeStats(mockSvc))

	last := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mockSvc.On("Stats", mock.Anything, testSupervisor, testQRID).Return(&service.QRStats{
		QRID:          testQRID,
		DocumentID:    "doc-1",
		IsActive:      true,
		TotalScans:    12,
		LastScan:      &last,
		ScansToday:    3,
		ScansThisWeek: 9,
	}, nil).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/qrcodes/"+testQRID+"/stats", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var st service.QRStats
	json.NewDecoder(resp.Body).Decode(&st)
	assert.Equal(t, int64(12), st.TotalScans)
	assert.Equal(t, int64(3), st.ScansToday)
	mockSvc.AssertExpectations(t)
}
