package synapse

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"manifestflow/internal/fault"
	"manifestflow/internal/rest"
)

// MinPartSize is the smallest part the multipart upload API accepts.
const MinPartSize = 5 << 20

type uploadStatus struct {
	UploadID           string `json:"uploadId"`
	State              string `json:"state"`
	PartsState         string `json:"partsState"`
	ResultFileHandleID string `json:"resultFileHandleId"`
}

type presignedPart struct {
	PartNumber         int               `json:"partNumber"`
	UploadPresignedURL string            `json:"uploadPresignedUrl"`
	SignedHeaders      map[string]string `json:"signedHeaders"`
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// upload pushes data through the multipart upload API and returns the new
// file handle id.
func (c *Client) upload(ctx context.Context, args ClientArgs, name, contentType string, data []byte) (string, error) {
	size := len(data)
	partSize := MinPartSize
	if size > partSize*10000 {
		partSize = (size + 9999) / 10000
	}
	parts := (size + partSize - 1) / partSize
	if parts == 0 {
		parts = 1
	}

	var status uploadStatus
	err := c.http.SendJSON(ctx, http.MethodPost, "synapse: start upload", c.file+"/file/multipart", nil, args, map[string]any{
		"concreteType":  "org.sagebionetworks.repo.model.file.MultipartUploadRequest",
		"fileName":      name,
		"contentType":   contentType,
		"contentMD5Hex": md5Hex(data),
		"fileSizeBytes": size,
		"partSizeBytes": partSize,
	}, &status)
	if err != nil {
		return "", err
	}
	// the same bytes were uploaded before; the handle is reused
	if status.State == "COMPLETED" {
		return status.ResultFileHandleID, nil
	}

	numbers := make([]int, 0, parts)
	for p := 1; p <= parts; p++ {
		if len(status.PartsState) >= p && status.PartsState[p-1] == '1' {
			continue
		}
		numbers = append(numbers, p)
	}
	base := c.file + "/file/multipart/" + url.PathEscape(status.UploadID)

	if len(numbers) > 0 {
		var batch struct {
			PartPresignedURLs []presignedPart `json:"partPresignedUrls"`
		}
		err = c.http.SendJSON(ctx, http.MethodPost, "synapse: presign parts", base+"/presigned/url/batch", nil, args, map[string]any{
			"concreteType": "org.sagebionetworks.repo.model.file.BatchPresignedUploadUrlRequest",
			"uploadId":     status.UploadID,
			"partNumbers":  numbers,
		}, &batch)
		if err != nil {
			return "", err
		}
		for _, part := range batch.PartPresignedURLs {
			lo := (part.PartNumber - 1) * partSize
			hi := min(lo+partSize, size)
			if err := c.putPart(ctx, args, base, part, data[lo:hi]); err != nil {
				return "", err
			}
		}
	}

	err = c.http.SendJSON(ctx, http.MethodPut, "synapse: complete upload", base+"/complete", nil, args, nil, &status)
	if err != nil {
		return "", err
	}
	if status.State != "COMPLETED" || status.ResultFileHandleID == "" {
		return "", fault.Newf(fault.Remote, "synapse: complete upload", "upload %s ended in state %q", status.UploadID, status.State)
	}
	return status.ResultFileHandleID, nil
}

func (c *Client) putPart(ctx context.Context, args ClientArgs, base string, part presignedPart, chunk []byte) error {
	h := http.Header{}
	for k, v := range part.SignedHeaders {
		h.Set(k, v)
	}
	_, err := c.http.Do(ctx, &rest.Request{
		Op:     fmt.Sprintf("synapse: upload part %d", part.PartNumber),
		Method: http.MethodPut,
		Path:   part.UploadPresignedURL,
		Header: h,
		Body:   chunk,
	})
	if err != nil {
		return err
	}

	var added struct {
		AddPartState string `json:"addPartState"`
		ErrorMessage string `json:"errorMessage"`
	}
	path := base + "/add/" + strconv.Itoa(part.PartNumber)
	q := url.Values{"partMD5Hex": {md5Hex(chunk)}}
	if err := c.http.SendJSON(ctx, http.MethodPut, "synapse: add part", path, q, args, nil, &added); err != nil {
		return err
	}
	if added.AddPartState != "ADD_SUCCESS" {
		return fault.Newf(fault.Remote, "synapse: add part", "part %d: %s %s", part.PartNumber, added.AddPartState, added.ErrorMessage)
	}
	return nil
}
