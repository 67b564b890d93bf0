// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSScheme prefixes Cloud Storage URIs.
const GCSScheme = "gs://"

// GCSObject identifies an object in Cloud Storage.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
}

// URI renders the object as gs://bucket/name.
func (o GCSObject) URI() string {
	return GCSScheme + o.Bucket + "/" + o.Name
}

// IsGCSURI reports whether s has the gs:// scheme.
func IsGCSURI(s string) bool {
	return strings.HasPrefix(s, GCSScheme)
}

// ParseGCSURI splits gs://bucket/name. The name may be empty for a bare
// bucket or end with a slash for a prefix.
func ParseGCSURI(uri string) (GCSObject, error) {
	if !IsGCSURI(uri) {
		return GCSObject{}, fmt.Errorf("not a gs:// uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, GCSScheme)
	bucket, name, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return GCSObject{}, fmt.Errorf("missing bucket in %q", uri)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}

// ListGCSObjects returns the objects directly under prefix. Nested
// "directories" are not descended into.
func ListGCSObjects(ctx context.Context, client *storage.Client, prefix GCSObject) ([]GCSObject, error) {
	dir := prefix.Name
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	it := client.Bucket(prefix.Bucket).Objects(ctx, &storage.Query{Prefix: dir, Delimiter: "/"})
	var out []GCSObject
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix.URI(), err)
		}
		if attrs.Name == "" || strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, GCSObject{Bucket: attrs.Bucket, Name: attrs.Name, MIMEType: attrs.ContentType})
	}
	return out, nil
}

// JoinObjectName joins object name segments with forward slashes.
func JoinObjectName(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), "/")
}

// ReadGCSObject reads a whole object into memory.
func ReadGCSObject(ctx context.Context, client *storage.Client, obj GCSObject) ([]byte, error) {
	reader, err := client.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", obj.URI(), err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", obj.URI(), err)
	}
	return data, nil
}
