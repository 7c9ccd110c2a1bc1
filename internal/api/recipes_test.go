package api

import (
	"net/http"
	"testing"

	"github.com/fatxioken06/Culinary-Canvas/internal/model"

	"github.com/gin-gonic/gin"
)

func TestCreateRecipe_DefaultsToDraft(t *testing.T) {
	s, _ := newTestServer(t)
	token, _ := registerUser(t, s, "author@example.com")
	catID := seedCategory(t, s, "Dinner")

	w := doJSON(t, s, http.MethodPost, "/recipes", token, gin.H{
		"title":        "Spicy Noodles",
		"description":  "hot",
		"ingredients":  "noodles",
		"instructions": "boil",
		"category_id":  catID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Slug       string `json:"slug"`
		IsDraft    bool   `json:"is_draft"`
		Difficulty string `json:"difficulty"`
		Servings   int    `json:"servings"`
	}
	decodeJSON(t, w, &resp)
	if !resp.IsDraft {
		t.Error("expected new recipe to default to draft")
	}
	if resp.Slug != "spicy-noodles" {
		t.Errorf("unexpected slug %q", resp.Slug)
	}
	if resp.Difficulty != model.DifficultyEasy {
		t.Errorf("expected default difficulty easy, got %q", resp.Difficulty)
	}
	if resp.Servings != 1 {
		t.Errorf("expected default servings 1, got %d", resp.Servings)
	}
}

func TestCreateRecipe_SlugCollision(t *testing.T) {
	s, _ := newTestServer(t)
	token, _ := registerUser(t, s, "author@example.com")
	catID := seedCategory(t, s, "Dinner")

	first := createRecipe(t, s, token, "Pasta Carbonara", catID, false)
	second := createRecipe(t, s, token, "Pasta Carbonara", catID, false)
	third := createRecipe(t, s, token, "Pasta Carbonara", catID, false)

	if first != "pasta-carbonara" {
		t.Errorf("first slug: %q", first)
	}
	if second != "pasta-carbonara-1" {
		t.Errorf("second slug: %q", second)
	}
	if third != "pasta-carbonara-2" {
		t.Errorf("third slug: %q", third)
	}
}

func TestCreateRecipe_Validation(t *testing.T) {
	s, _ := newTestServer(t)
	token, _ := registerUser(t, s, "author@example.com")
	catID := seedCategory(t, s, "Dinner")

	cases := []struct {
		name string
		body gin.H
	}{
		{"bad difficulty", gin.H{"title": "X", "description": "d", "ingredients": "i", "instructions": "s", "category_id": catID, "difficulty": "impossible"}},
		{"negative prep time", gin.H{"title": "X", "description": "d", "ingredients": "i", "instructions": "s", "category_id": catID, "prep_time": -5}},
		{"zero servings rejected", gin.H{"title": "X", "description": "d", "ingredients": "i", "instructions": "s", "category_id": catID, "servings": -1}},
		{"missing category", gin.H{"title": "X", "description": "d", "ingredients": "i", "instructions": "s", "category_id": 9999}},
	}
	for _, tc := range cases {
		w := doJSON(t, s, http.MethodPost, "/recipes", token, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d (%s)", tc.name, w.Code, w.Body.String())
		}
	}
}

func TestGetRecipe_DraftVisibility(t *testing.T) {
	s, _ := newTestServer(t)
	ownerToken, _ := registerUser(t, s, "owner@example.com")
	otherToken, _ := registerUser(t, s, "other@example.com")
	staffToken, _ := registerStaff(t, s, "staff@example.com")
	catID := seedCategory(t, s, "Dinner")

	slug := createRecipe(t, s, ownerToken, "Secret Stew", catID, true)

	// 匿名与他人都看不到草稿，且是 404 而非 403
	if w := doJSON(t, s, http.MethodGet, "/recipes/"+slug, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("anonymous: expected 404, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/recipes/"+slug, otherToken, nil); w.Code != http.StatusNotFound {
		t.Errorf("other user: expected 404, got %d", w.Code)
	}

	// 作者与 staff 可以看到
	if w := doJSON(t, s, http.MethodGet, "/recipes/"+slug, ownerToken, nil); w.Code != http.StatusOK {
		t.Errorf("owner: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if w := doJSON(t, s, http.MethodGet, "/recipes/"+slug, staffToken, nil); w.Code != http.StatusOK {
		t.Errorf("staff: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestListRecipes_ExcludesDrafts(t *testing.T) {
	s, _ := newTestServer(t)
	token, _ := registerUser(t, s, "author@example.com")
	catID := seedCategory(t, s, "Dinner")

	createRecipe(t, s, token, "Published Pie", catID, false)
	createRecipe(t, s, token, "Draft Pie", catID, true)

	w := doJSON(t, s, http.MethodGet, "/recipes", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count   int64 `json:"count"`
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	decodeJSON(t, w, &resp)
	if resp.Count != 1 || len(resp.Results) != 1 {
		t.Fatalf("expected 1 published recipe, got count=%d results=%d", resp.Count, len(resp.Results))
	}
	if resp.Results[0].Title != "Published Pie" {
		t.Errorf("unexpected recipe %q", resp.Results[0].Title)
	}
}

func TestListRecipes_Filters(t *testing.T) {
	s, _ := newTestServer(t)
	token, _ := registerUser(t, s, "author@example.com")
	dinner := seedCategory(t, s, "Dinner")
	dessert := seedCategory(t, s, "Dessert")

	doJSON(t, s, http.MethodPost, "/recipes", token, gin.H{
		"title": "Quick Salad", "description": "fresh", "ingredients": "greens",
		"instructions": "toss", "category_id": dinner, "difficulty": "easy",
		"prep_time": 5, "cook_time": 0, "servings": 1, "is_draft": false,
	})
	doJSON(t, s, http.MethodPost, "/recipes", token, gin.H{
		"title": "Slow Cake", "description": "sweet", "ingredients": "flour",
		"instructions": "bake", "category_id": dessert, "difficulty": "hard",
		"prep_time": 30, "cook_time": 90, "servings": 8, "is_draft": false,
	})

	var resp struct {
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}

	w := doJSON(t, s, http.MethodGet, "/recipes?difficulty=hard", "", nil)
	decodeJSON(t, w, &resp)
	if len(resp.Results) != 1 || resp.Results[0].Title != "Slow Cake" {
		t.Errorf("difficulty filter: %+v", resp.Results)
	}

	w = doJSON(t, s, http.MethodGet, "/recipes?total_time_max=10", "", nil)
	decodeJSON(t, w, &resp)
	if len(resp.Results) != 1 || resp.Results[0].Title != "Quick Salad" {
		t.Errorf("total_time_max filter: %+v", resp.Results)
	}

	w = doJSON(t, s, http.MethodGet, "/recipes?search=flour", "", nil)
	decodeJSON(t, w, &resp)
	if len(resp.Results) != 1 || resp.Results[0].Title != "Slow Cake" {
		t.Errorf("search filter: %+v", resp.Results)
	}
}

func TestUpdateRecipe_OwnershipAndSlugStability(t *testing.T) {
	s, _ := newTestServer(t)
	ownerToken, _ := registerUser(t, s, "owner@example.com")
	otherToken, _ := registerUser(t, s, "other@example.com")
	catID := seedCategory(t, s, "Dinner")

	slug := createRecipe(t, s, ownerToken, "Original Title", catID, false)

	// 非作者禁止修改
	w := doJSON(t, s, http.MethodPatch, "/recipes/"+slug, otherToken, gin.H{"title": "Hijacked"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", w.Code)
	}

	// 作者改标题，slug 不变
	w = doJSON(t, s, http.MethodPatch, "/recipes/"+slug, ownerToken, gin.H{"title": "Brand New Title"})
	if w.Code != http.StatusOK {
		t.Fatalf("owner update: status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Title string `json:"title"`
		Slug  string `json:"slug"`
	}
	decodeJSON(t, w, &resp)
	if resp.Title != "Brand New Title" {
		t.Errorf("title not updated: %q", resp.Title)
	}
	if resp.Slug != slug {
		t.Errorf("slug must stay stable, was %q now %q", slug, resp.Slug)
	}
}

func TestUpdateRecipe_FeaturedStaffOnly(t *testing.T) {
	s, _ := newTestServer(t)
	ownerToken, _ := registerUser(t, s, "owner@example.com")
	staffToken, _ := registerStaff(t, s, "staff@example.com")
	catID := seedCategory(t, s, "Dinner")

	slug := createRecipe(t, s, ownerToken, "Nice Dish", catID, false)

	w := doJSON(t, s, http.MethodPatch, "/recipes/"+slug, ownerToken, gin.H{"is_featured": true})
	if w.Code != http.StatusForbidden {
		t.Fatalf("owner featuring own recipe: expected 403, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPatch, "/recipes/"+slug, staffToken, gin.H{"is_featured": true})
	if w.Code != http.StatusOK {
		t.Fatalf("staff featuring: status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		IsFeatured bool `json:"is_featured"`
	}
	decodeJSON(t, w, &resp)
	if !resp.IsFeatured {
		t.Error("expected recipe to be featured")
	}
}

func TestDeleteRecipe(t *testing.T) {
	s, _ := newTestServer(t)
	ownerToken, _ := registerUser(t, s, "owner@example.com")
	otherToken, _ := registerUser(t, s, "other@example.com")
	catID := seedCategory(t, s, "Dinner")

	slug := createRecipe(t, s, ownerToken, "Doomed Dish", catID, false)

	if w := doJSON(t, s, http.MethodDelete, "/recipes/"+slug, otherToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-owner delete: expected 403, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodDelete, "/recipes/"+slug, ownerToken, nil); w.Code != http.StatusNoContent {
		t.Fatalf("owner delete: expected 204, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/recipes/"+slug, ownerToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("after delete: expected 404, got %d", w.Code)
	}
}

func TestPopularRecipes_RequiresMinimumRatings(t *testing.T) {
	s, _ := newTestServer(t)
	authorToken, _ := registerUser(t, s, "author@example.com")
	catID := seedCategory(t, s, "Dinner")

	popular := createRecipe(t, s, authorToken, "Crowd Favorite", catID, false)
	sparse := createRecipe(t, s, authorToken, "Hidden Gem", catID, false)

	// popular: 3 票；sparse: 1 票（低于阈值）
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		token, _ := registerUser(t, s, email)
		w := doJSON(t, s, http.MethodPost, "/recipes/"+popular+"/ratings", token, gin.H{"rating": 4 + i%2})
		if w.Code != http.StatusCreated {
			t.Fatalf("rate popular: status %d body %s", w.Code, w.Body.String())
		}
		if i == 0 {
			w = doJSON(t, s, http.MethodPost, "/recipes/"+sparse+"/ratings", token, gin.H{"rating": 5})
			if w.Code != http.StatusCreated {
				t.Fatalf("rate sparse: status %d body %s", w.Code, w.Body.String())
			}
		}
	}

	w := doJSON(t, s, http.MethodGet, "/recipes/popular", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("popular: status %d body %s", w.Code, w.Body.String())
	}
	var resp []struct {
		Slug         string `json:"slug"`
		RatingsCount int64  `json:"ratings_count"`
	}
	decodeJSON(t, w, &resp)
	if len(resp) != 1 {
		t.Fatalf("expected 1 popular recipe, got %d", len(resp))
	}
	if resp[0].Slug != popular {
		t.Errorf("unexpected popular recipe %q", resp[0].Slug)
	}
	if resp[0].RatingsCount != 3 {
		t.Errorf("expected 3 ratings, got %d", resp[0].RatingsCount)
	}
}

func TestMyRecipesIncludesDrafts(t *testing.T) {
	s, _ := newTestServer(t)
	token, _ := registerUser(t, s, "author@example.com")
	catID := seedCategory(t, s, "Dinner")

	createRecipe(t, s, token, "Public Dish", catID, false)
	createRecipe(t, s, token, "Private Draft", catID, true)

	w := doJSON(t, s, http.MethodGet, "/me/recipes", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp []struct {
		Title   string `json:"title"`
		IsDraft bool   `json:"is_draft"`
	}
	decodeJSON(t, w, &resp)
	if len(resp) != 2 {
		t.Fatalf("expected 2 recipes, got %d", len(resp))
	}
}

func TestMyStats(t *testing.T) {
	s, _ := newTestServer(t)
	authorToken, _ := registerUser(t, s, "author@example.com")
	raterToken, _ := registerUser(t, s, "rater@example.com")
	catID := seedCategory(t, s, "Dinner")

	slug := createRecipe(t, s, authorToken, "Rated Dish", catID, false)
	createRecipe(t, s, authorToken, "Draft Dish", catID, true)

	w := doJSON(t, s, http.MethodPost, "/recipes/"+slug+"/ratings", raterToken, gin.H{"rating": 4})
	if w.Code != http.StatusCreated {
		t.Fatalf("rate: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/me/stats", authorToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		RecipesCount    int64   `json:"recipes_count"`
		PublishedCount  int64   `json:"published_count"`
		DraftCount      int64   `json:"draft_count"`
		RatingsReceived int64   `json:"ratings_received"`
		AverageRating   float64 `json:"average_rating"`
	}
	decodeJSON(t, w, &resp)
	if resp.RecipesCount != 2 || resp.PublishedCount != 1 || resp.DraftCount != 1 {
		t.Errorf("counts: %+v", resp)
	}
	if resp.RatingsReceived != 1 || resp.AverageRating != 4 {
		t.Errorf("ratings: %+v", resp)
	}
}

func TestListRecipes_MineIncludesDrafts(t *testing.T) {
	s, _ := newTestServer(t)
	authorToken, _ := registerUser(t, s, "author@example.com")
	otherToken, _ := registerUser(t, s, "other@example.com")
	catID := seedCategory(t, s, "Dinner")

	createRecipe(t, s, authorToken, "My Draft", catID, true)
	createRecipe(t, s, authorToken, "My Public", catID, false)
	createRecipe(t, s, otherToken, "Their Public", catID, false)

	w := doJSON(t, s, http.MethodGet, "/recipes?my_recipes=true", authorToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count   int64 `json:"count"`
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	decodeJSON(t, w, &resp)
	if resp.Count != 2 {
		t.Fatalf("expected 2 own recipes (draft included), got %d", resp.Count)
	}

	// 未登录时该参数被忽略，只返回已发布内容
	w = doJSON(t, s, http.MethodGet, "/recipes?my_recipes=true", "", nil)
	decodeJSON(t, w, &resp)
	if resp.Count != 2 {
		t.Fatalf("anonymous: expected the 2 published recipes, got %d", resp.Count)
	}
	for _, r := range resp.Results {
		if r.Title == "My Draft" {
			t.Error("draft leaked to anonymous listing")
		}
	}
}
