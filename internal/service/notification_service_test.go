package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/service"
	"github.com/shaharia-lab/notifyd/internal/storage"
	"github.com/shaharia-lab/notifyd/internal/storage/mocks"
)

type stubDispatcher struct {
	intents []notification.Intent
	jobs    []notification.Job
}

func (d *stubDispatcher) Dispatch(_ context.Context, intent notification.Intent) []notification.Job {
	d.intents = append(d.intents, intent)
	return d.jobs
}

func newTestService() (service.NotificationService, *stubDispatcher, *mocks.MockTemplateStore, *mocks.MockDeliveryStore) {
	d := &stubDispatcher{}
	ts := &mocks.MockTemplateStore{}
	ds := &mocks.MockDeliveryStore{}
	return service.NewNotificationService(d, ts, ds), d, ts, ds
}

func TestSend_Validation(t *testing.T) {
	svc, d, _, _ := newTestService()

	tests := []struct {
		name   string
		intent notification.Intent
		field  string
	}{
		{"missing code", notification.Intent{NotifiableType: "user", NotifiableID: 1}, "code"},
		{"missing type", notification.Intent{Code: "x", NotifiableID: 1}, "notifiable_type"},
		{"bad id", notification.Intent{Code: "x", NotifiableType: "user"}, "notifiable_id"},
		{"blank channel", notification.Intent{Code: "x", NotifiableType: "user", NotifiableID: 1, PreferredChannels: []string{" "}}, "channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), tt.intent)
			var ve *service.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Empty(t, d.intents)
}

func TestSend_Dispatches(t *testing.T) {
	svc, d, _, _ := newTestService()
	d.jobs = []notification.Job{{ID: "j1", Channel: "mail"}}

	res, err := svc.Send(context.Background(), notification.Intent{Code: " cert_issued ", NotifiableType: "user", NotifiableID: 42})
	require.NoError(t, err)
	assert.Equal(t, d.jobs, res.Jobs)
	require.Len(t, d.intents, 1)
	assert.Equal(t, "cert_issued", d.intents[0].Code)
}

func TestSend_NoJobsIsNotAnError(t *testing.T) {
	svc, _, _, _ := newTestService()

	res, err := svc.Send(context.Background(), notification.Intent{Code: "x", NotifiableType: "user", NotifiableID: 1})
	require.NoError(t, err)
	assert.NotNil(t, res.Jobs)
	assert.Empty(t, res.Jobs)
}

func TestGetDelivery(t *testing.T) {
	svc, _, _, ds := newTestService()
	rec := &storage.DeliveryRecord{ID: 5, Status: storage.DeliverySent}
	ds.On("GetDelivery", mock.Anything, int64(5)).Return(rec, nil)
	ds.On("GetDelivery", mock.Anything, int64(6)).Return(nil, nil)
	ds.On("GetDelivery", mock.Anything, int64(7)).Return(nil, errors.New("disk"))

	got, err := svc.GetDelivery(context.Background(), 5)
	require.NoError(t, err)
	assert.Same(t, rec, got)

	_, err = svc.GetDelivery(context.Background(), 6)
	var nf *service.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = svc.GetDelivery(context.Background(), 7)
	assert.ErrorContains(t, err, "disk")
	ds.AssertExpectations(t)
}

func TestListDeliveries(t *testing.T) {
	svc, _, _, ds := newTestService()
	filter := storage.DeliveryFilter{Status: storage.DeliveryFailed, Limit: 10}
	ds.On("ListDeliveries", mock.Anything, filter).Return([]*storage.DeliveryRecord{{ID: 1}}, nil)

	recs, err := svc.ListDeliveries(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	var ve *service.ValidationError
	_, err = svc.ListDeliveries(context.Background(), storage.DeliveryFilter{Status: "lost"})
	assert.ErrorAs(t, err, &ve)
	_, err = svc.ListDeliveries(context.Background(), storage.DeliveryFilter{Limit: 10_000})
	assert.ErrorAs(t, err, &ve)
	ds.AssertExpectations(t)
}

func TestImportTemplates(t *testing.T) {
	svc, _, ts, _ := newTestService()
	ts.On("ListTemplates", mock.Anything, "cert_issued").Return([]*storage.Template{}, nil)
	ts.On("CreateTemplate", mock.Anything, mock.AnythingOfType("*storage.Template")).
		Run(func(args mock.Arguments) { args.Get(1).(*storage.Template).ID = 9 }).
		Return(nil)

	got, err := svc.ImportTemplates(context.Background(), []*storage.Template{{
		Code:     "cert_issued",
		Name:     "Certificate issued",
		Channels: []string{"mail"},
		Content:  map[string]string{"mail": "Hi {{name}}"},
	}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 9, got[0].ID)
	assert.Equal(t, storage.TemplateEnabled, got[0].Status)
	ts.AssertExpectations(t)
}

func TestImportTemplates_Rejects(t *testing.T) {
	svc, _, ts, _ := newTestService()
	ts.On("ListTemplates", mock.Anything, "dup").Return([]*storage.Template{{ID: 1, Code: "dup", Name: "Existing"}}, nil)

	var ve *service.ValidationError
	_, err := svc.ImportTemplates(context.Background(), []*storage.Template{{Code: "x", Name: "n"}})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "channels", ve.Field)

	_, err = svc.ImportTemplates(context.Background(), []*storage.Template{{
		Code: "x", Name: "n", Channels: []string{"mail"}, Content: map[string]string{"sms": "hi"},
	}})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "content", ve.Field)

	_, err = svc.ImportTemplates(context.Background(), []*storage.Template{{Code: "dup", Name: "Existing", Channels: []string{"mail"}}})
	var ce *service.ConflictError
	assert.ErrorAs(t, err, &ce)
	ts.AssertNotCalled(t, "CreateTemplate", mock.Anything, mock.Anything)
}

func TestSetTemplateStatus(t *testing.T) {
	svc, _, ts, _ := newTestService()
	ts.On("GetTemplate", mock.Anything, int64(3)).Return(&storage.Template{ID: 3}, nil)
	ts.On("GetTemplate", mock.Anything, int64(4)).Return(nil, nil)
	ts.On("SetTemplateStatus", mock.Anything, int64(3), storage.TemplateDisabled).Return(nil)

	require.NoError(t, svc.SetTemplateStatus(context.Background(), 3, storage.TemplateDisabled))

	var nf *service.NotFoundError
	assert.ErrorAs(t, svc.SetTemplateStatus(context.Background(), 4, storage.TemplateDisabled), &nf)

	var ve *service.ValidationError
	assert.ErrorAs(t, svc.SetTemplateStatus(context.Background(), 3, "paused"), &ve)
	ts.AssertExpectations(t)
}
