package http_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/answer"
	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/embeddings"
	"github.com/fyrsmithlabs/filingqa/internal/extract"
	"github.com/fyrsmithlabs/filingqa/internal/generation"
	httpserver "github.com/fyrsmithlabs/filingqa/internal/http"
	"github.com/fyrsmithlabs/filingqa/internal/index"
	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

// A question asked before any filing is ingested still gets a 200 and a
// result; the status says why there is no answer.
func ExampleServer() {
	emb := embeddings.NewHashProvider(0)
	svc, err := qa.New(config.Default(), qa.Dependencies{
		Extractor: extract.NewAuto(),
		Embedder:  emb,
		Index:     index.New(emb),
		Assembler: answer.New(generation.NewExtractive(), answer.Options{}, nil),
	})
	if err != nil {
		panic(err)
	}

	server, err := httpserver.NewServer(svc, nil, zap.NewNop(), nil)
	if err != nil {
		panic(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask",
		strings.NewReader(`{"question":"What was Apple's total revenue in fiscal 2024?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Echo().ServeHTTP(rec, req)

	var res qa.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		panic(err)
	}
	fmt.Println(rec.Code, res.Status, len(res.Sources))
	// Output: 200 not_indexed 0
}
