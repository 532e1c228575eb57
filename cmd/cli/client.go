// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("BARCODE_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8000"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

func listReview(batchID string, limit int) (map[string]interface{}, error) {
	var out map[string]interface{}
	req := newClient().R().SetResult(&out).SetQueryParam("limit", fmt.Sprint(limit))
	if batchID != "" {
		req.SetQueryParam("batch_id", batchID)
	}
	resp, err := req.Get("/api/images/review")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/images/review: %s", resp.String())
	}
	return out, nil
}

func getImage(imageID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().SetResult(&out).Get("/api/images/" + imageID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/images/%s: %s", imageID, resp.String())
	}
	return out, nil
}

func resolveImage(imageID, action, detectionID, reviewer string) (map[string]interface{}, error) {
	body := map[string]string{"action": action, "detection_id": detectionID, "reviewer": reviewer}
	var out map[string]interface{}
	resp, err := newClient().R().SetBody(body).SetResult(&out).Post("/api/images/" + imageID + "/resolve")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/images/%s/resolve: %s", imageID, resp.String())
	}
	return out, nil
}

func getStats(batchID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	req := newClient().R().SetResult(&out)
	if batchID != "" {
		req.SetQueryParam("batch_id", batchID)
	}
	resp, err := req.Get("/api/stats")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/stats: %s", resp.String())
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
