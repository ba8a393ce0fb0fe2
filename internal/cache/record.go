package cache

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"net/http"

	"github.com/nexusrank/nexusrank-edge/internal/fetch"
)

// record 是持久化后端共用的条目编码格式。
type record struct {
	Key    string
	Status int
	Header http.Header
	Body   []byte
}

func encodeRecord(key string, resp *fetch.Response) ([]byte, error) {
	rec := record{
		Key:    key,
		Status: resp.Status,
		Header: resp.Header,
		Body:   resp.Body,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(b []byte) (*fetch.Response, error) {
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&rec); err != nil {
		return nil, err
	}
	header := rec.Header
	if header == nil {
		header = http.Header{}
	}
	return &fetch.Response{Status: rec.Status, Header: header, Body: rec.Body}, nil
}

// hashKey 把任意请求键映射为定长、可安全用作文件名/对象名的字符串。
func hashKey(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
