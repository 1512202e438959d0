package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

// 1x1 transparent GIF
var gif = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

func TestS3Store_Put(t *testing.T) {
	putter := &fakePutter{}
	store := newS3Store(putter, "media", "https://cdn.example.com/", 1024)

	url, err := store.Put(context.Background(), "messages", Upload{
		Filename: "Pixel.GIF",
		Size:     int64(len(gif)),
		Body:     bytes.NewReader(gif),
	})

	require.NoError(t, err)
	require.Len(t, putter.inputs, 1)
	in := putter.inputs[0]
	assert.Equal(t, "media", *in.Bucket)
	assert.Equal(t, "image/gif", *in.ContentType)
	assert.True(t, strings.HasPrefix(*in.Key, "messages/"))
	assert.True(t, strings.HasSuffix(*in.Key, ".gif"))
	assert.Equal(t, "https://cdn.example.com/"+*in.Key, url)
	assert.Equal(t, gif, putter.bodies[0])
}

func TestS3Store_PutRejects(t *testing.T) {
	tests := []struct {
		name string
		up   Upload
		want error
	}{
		{
			name: "declared size over limit",
			up:   Upload{Filename: "a.png", Size: 2048, Body: bytes.NewReader(nil)},
			want: ErrFileTooLarge,
		},
		{
			name: "body over limit",
			up:   Upload{Filename: "a.png", Body: bytes.NewReader(make([]byte, 2048))},
			want: ErrFileTooLarge,
		},
		{
			name: "plain text",
			up:   Upload{Filename: "notes.txt", Body: strings.NewReader("hello there")},
			want: ErrUnsupportedContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			putter := &fakePutter{}
			store := newS3Store(putter, "media", "https://cdn.example.com", 1024)

			_, err := store.Put(context.Background(), "messages", tt.up)

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, putter.inputs)
		})
	}
}

func TestS3Store_PutSurfacesStorageFailure(t *testing.T) {
	store := newS3Store(&fakePutter{err: errors.New("bucket gone")}, "media", "https://cdn.example.com", 1024)

	_, err := store.Put(context.Background(), "messages", Upload{Filename: "a.gif", Body: bytes.NewReader(gif)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}
