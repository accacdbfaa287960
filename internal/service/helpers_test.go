package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"doclocker/internal/model"
	"doclocker/internal/storage"
)

const (
	testDocID = "5f0c1b8e-8f5a-4c39-9d2e-0a7d4c1e2b3f"
	testQRID  = "QR-7Hq2mVxKpL9sNcR4tYbW3a"
)

var (
	fixedNow = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	admin      = model.Actor{ID: "adm-1", Role: model.RoleAdmin, Department: "it"}
	supervisor = model.Actor{ID: "sup-1", Role: model.RoleSupervisor, Department: "maintenance"}
	outsider   = model.Actor{ID: "sup-2", Role: model.RoleSupervisor, Department: "quality"}
	operator   = model.Actor{ID: "usr-1", Role: model.RoleUser, Department: "maintenance"}
)

func testOptions() Options {
	return Options{
		MaxUploadBytes: 1024,
		AllowedTypes:   []string{"application/pdf", "text/plain"},
		PublicBaseURL:  "http://locker.test",
		Now:            func() time.Time { return fixedNow },
	}
}

// testDocument returns a maintenance document created by supervisor with
// versions 1..n.
func testDocument(n int, roles ...model.Role) *model.Document {
	if len(roles) == 0 {
		roles = []model.Role{model.RoleUser}
	}
	d := &model.Document{
		ID:             testDocID,
		Title:          "Pump P-101 manual",
		Department:     "maintenance",
		MachineID:      "P-101",
		QRID:           testQRID,
		CurrentVersion: n,
		AccessRoles:    roles,
		CreatedBy:      supervisor.ID,
		CreatedAt:      fixedNow.Add(-time.Hour),
		UpdatedAt:      fixedNow.Add(-time.Hour),
	}
	for i := 1; i <= n; i++ {
		d.Versions = append(d.Versions, model.Version{
			DocumentID:    testDocID,
			VersionNumber: i,
			StorageKey:    fmt.Sprintf("documents/%s/v%d.pdf", testDocID, i),
			ContentType:   "application/pdf",
		})
	}
	return d
}

// drainPut is a MockStorage Put result that consumes the upload.
func drainPut(ctx context.Context, key string, r io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
	n, _ := io.Copy(io.Discard, r)
	return storage.ObjectInfo{Key: key, URL: "s3://documents/" + key, Size: n}
}

type mockBinder struct {
	mock.Mock
}

func (m *mockBinder) Bind(ctx context.Context, actor model.Actor, documentID string) (*model.QRBinding, error) {
	args := m.Called(ctx, actor, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRBinding), args.Error(1)
}

func (m *mockBinder) Unbind(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, job ScanJob) error {
	return m.Called(ctx, job).Error(0)
}
