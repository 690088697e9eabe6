//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/offerforge/internal/agents"
	"github.com/ashureev/offerforge/internal/chat"
	"github.com/ashureev/offerforge/internal/domain"
	"github.com/ashureev/offerforge/internal/identity"
	"github.com/ashureev/offerforge/internal/pipeline"
	"github.com/ashureev/offerforge/internal/store"
)

const testUser = "anon_0123456789abcdef0123456789abcdef"

type testServer struct {
	repo   *store.MemoryStore
	router http.Handler
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	repo := store.NewMemory()
	require.NoError(t, repo.UpsertUser(context.Background(), &domain.User{UserID: testUser, Username: "anon-89abcdef"}))
	gen := pipeline.New(agents.NewLocalSet())
	chatSvc := chat.NewService(repo, gen, nil, nil, chat.Config{DemoBaseURL: "/demo"})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user := req.Header.Get("X-Test-User")
			if user == "" {
				user = testUser
			}
			next.ServeHTTP(w, req.WithContext(identity.WithUser(req.Context(), user)))
		})
	})
	NewHandler(repo, chatSvc, gen, nil, opts).RegisterRoutes(r)
	return &testServer{repo: repo, router: r}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createSystem(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/systems", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sys domain.System
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sys))
	require.NotEmpty(t, sys.ID)
	return sys.ID
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) ProblemWithErrors {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p ProblemWithErrors
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestGetMe(t *testing.T) {
	s := newTestServer(t, Options{})
	w := s.do(t, http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), testUser)
}

func TestSystems_OwnerScoped(t *testing.T) {
	s := newTestServer(t, Options{})
	id := s.createSystem(t)

	w := s.do(t, http.MethodGet, "/api/systems/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var sys domain.System
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sys))
	assert.Equal(t, domain.StatusInProgress, sys.Status)

	// Given: another caller asks for the same id
	w = s.do(t, http.MethodGet, "/api/systems/"+id, "", "X-Test-User", "anon_ffffffffffffffffffffffffffffffff")

	// Then: it does not exist for them
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, decodeProblem(t, w).Status)

	w = s.do(t, http.MethodGet, "/api/systems", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.System
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestPutProfile(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/api/profile", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/profile", `{"time_availability":"always","revenue_goal":"1k_3k","blockers":[]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	p := decodeProblem(t, w)
	assert.NotEmpty(t, p.Errors)

	w = s.do(t, http.MethodPut, "/api/profile", `{"time_availability":"5_to_15","revenue_goal":"1k_3k","blockers":["no_offer"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no_offer")
}

func TestPutMessages(t *testing.T) {
	s := newTestServer(t, Options{})
	id := s.createSystem(t)

	w := s.do(t, http.MethodPut, "/api/systems/"+id+"/messages", `{"messages":[]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := `[{"id":"m1","role":"assistant","kind":"text","text":"hello","created_at":"2026-01-02T03:04:05Z"}]`
	w = s.do(t, http.MethodPut, "/api/systems/"+id+"/messages", body)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	sys, err := s.repo.GetSystem(context.Background(), id, testUser)
	require.NoError(t, err)
	require.Len(t, sys.Messages, 1)
	assert.Equal(t, "hello", sys.Messages[0].Text)

	bad := `[{"id":"m2","role":"assistant","kind":"card","card":{"id":"c1","type":"text-input"}}]`
	w = s.do(t, http.MethodPut, "/api/systems/"+id+"/messages", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestResetHistory_KeepsOffer(t *testing.T) {
	s := newTestServer(t, Options{})
	id := s.createSystem(t)
	ctx := context.Background()
	require.NoError(t, s.repo.AppendConversationHistory(ctx, id, testUser, []domain.ConversationMessage{{Role: domain.RoleUser, Content: "hi"}}))
	_, err := s.repo.SaveOfferIfAbsent(ctx, id, testUser, &domain.AssembledOffer{TransformationFrom: "a", TransformationTo: "b"})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/systems/"+id+"/reset", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	sys, err := s.repo.GetSystem(ctx, id, testUser)
	require.NoError(t, err)
	assert.Empty(t, sys.ConversationHistory)
	assert.True(t, sys.HasOffer())
}

func TestPutOffer(t *testing.T) {
	s := newTestServer(t, Options{})
	id := s.createSystem(t)

	w := s.do(t, http.MethodPut, "/api/systems/"+id+"/offer", `{"transformation_from":"x","transformation_to":"y","system_description":"z","pricing_setup":-1,"pricing_monthly":10,"guarantee":"g"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPut, "/api/systems/"+id+"/offer", `{"transformation_from":"x","transformation_to":"y","system_description":"z","pricing_setup":100,"pricing_monthly":10,"guarantee":"g"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sys, err := s.repo.GetSystem(context.Background(), id, testUser)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOfferReady, sys.Status)
	assert.Equal(t, 100.0, sys.Offer.PricingSetup)
}

func TestPutOffer_GuaranteeSkipComesFromSystem(t *testing.T) {
	s := newTestServer(t, Options{})
	id := s.createSystem(t)
	body := `{"transformation_from":"x","transformation_to":"y","system_description":"z","pricing_setup":100,"pricing_monthly":10,"guarantee":"","guarantee_skipped":true}`

	// Given: a system where the user never skipped the guarantee
	// When: the client claims the guarantee was skipped
	w := s.do(t, http.MethodPut, "/api/systems/"+id+"/offer", body)

	// Then: the empty guarantee is rejected and nothing is stored
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "guarantee")
	sys, err := s.repo.GetSystem(context.Background(), id, testUser)
	require.NoError(t, err)
	assert.Nil(t, sys.Offer)

	// Once the system records the skip, the same edit is accepted.
	require.NoError(t, s.repo.SetAnswer(context.Background(), id, testUser, domain.AnswerSkipGuarantee, "true"))
	w = s.do(t, http.MethodPut, "/api/systems/"+id+"/offer", strings.Replace(body, `"guarantee_skipped":true`, `"guarantee_skipped":false`, 1))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sys, err = s.repo.GetSystem(context.Background(), id, testUser)
	require.NoError(t, err)
	assert.True(t, sys.Offer.GuaranteeSkipped)
}

func TestPutOffer_FinalisedSystem(t *testing.T) {
	s := newTestServer(t, Options{})
	id := s.createSystem(t)
	require.NoError(t, s.repo.UpdateStatus(context.Background(), id, testUser, domain.StatusComplete))

	w := s.do(t, http.MethodPut, "/api/systems/"+id+"/offer", `{"transformation_from":"x","transformation_to":"y","system_description":"z","pricing_setup":100,"pricing_monthly":10,"guarantee":"g"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPregenerate_Disabled(t *testing.T) {
	s := newTestServer(t, Options{})
	id := s.createSystem(t)
	w := s.do(t, http.MethodPost, "/api/systems/"+id+"/pregenerate", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChat_StreamsTurn(t *testing.T) {
	s := newTestServer(t, Options{Limiter: NewRateLimiter(2, time.Minute)})
	id := s.createSystem(t)

	w := s.do(t, http.MethodPost, "/api/systems/"+id+"/chat", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "id: 1\nevent: text-delta\n")
	assert.Contains(t, body, "event: card\n")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {\"type\":\"done\",\"status\":\"in_progress\"}\n\n"), body)

	w = s.do(t, http.MethodPost, "/api/systems/"+id+"/chat", `{"message":"hi","response":{"card_id":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/systems/"+id+"/chat", `{}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, http.StatusTooManyRequests, decodeProblem(t, w).Status)
}

func TestChat_Rejections(t *testing.T) {
	s := newTestServer(t, Options{MaxBodyBytes: 32})
	id := s.createSystem(t)

	w := s.do(t, http.MethodPost, "/api/systems/"+id+"/chat", `{"message":"`+strings.Repeat("a", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = s.do(t, http.MethodPost, "/api/systems/"+id+"/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/systems/missing/chat", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPipelineEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodPost, "/api/pipeline/offer", `{"chosenRecommendation":{},"profile":{},"answers":{}}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	in := `{
		"chosenRecommendation": {"niche":"roofing","bottleneck":"lead response time","solution":"instant replies"},
		"profile": {"time_availability":"5_to_15","revenue_goal":"1k_3k","blockers":["no_offer"]},
		"answers": {"delivery_model":"subscription","pricing_direction":"mid","location_city":"Leeds"}
	}`
	w = s.do(t, http.MethodPost, "/api/pipeline/offer", in)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StatusSuccess, res.Status)
	require.NotNil(t, res.Result)
	assert.NotEmpty(t, res.Result.Guarantee)

	w = s.do(t, http.MethodPost, "/api/pipeline/analyze", `{"time_availability":"5_to_15","revenue_goal":"1k_3k","blockers":["no_offer"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recommendations")
}
