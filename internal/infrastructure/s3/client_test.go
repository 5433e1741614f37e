package s3infra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-membership-api/internal/application/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPutter struct{ mock.Mock }

func (m *mockPutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestPutReport_KeyAndBody(t *testing.T) {
	p := &mockPutter{}
	var got *s3.PutObjectInput
	var body []byte
	p.On("PutObject", mock.Anything, mock.AnythingOfType("*s3.PutObjectInput")).
		Run(func(args mock.Arguments) {
			got = args.Get(1).(*s3.PutObjectInput)
			body, _ = io.ReadAll(got.Body)
		}).
		Return(&s3.PutObjectOutput{}, nil)

	a := &ReportArchive{client: p, bucket: "ops-reports"}
	r := sweep.Report{
		Job:   sweep.JobExpire,
		Count: 2,
		IDs:   []string{"a", "b"},
		RanAt: time.Date(2026, 5, 1, 16, 0, 5, 0, time.UTC),
	}
	require.NoError(t, a.PutReport(context.Background(), r))

	assert.Equal(t, "ops-reports", aws.ToString(got.Bucket))
	assert.Equal(t, "sweeps/expire_stale_signups/2026/05/01/160005.json", aws.ToString(got.Key))
	assert.Equal(t, "application/json", aws.ToString(got.ContentType))
	var decoded sweep.Report
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, 2, decoded.Count)
	assert.Equal(t, []string{"a", "b"}, decoded.IDs)
}

func TestPutReport_Error(t *testing.T) {
	p := &mockPutter{}
	p.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))
	a := &ReportArchive{client: p, bucket: "b"}
	assert.ErrorContains(t, a.PutReport(context.Background(), sweep.Report{Job: "x"}), "access denied")
}
