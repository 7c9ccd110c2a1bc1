package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCategoryManagement_StaffOnly(t *testing.T) {
	s, _ := newTestServer(t)
	userToken, _ := registerUser(t, s, "user@example.com")
	staffToken, _ := registerStaff(t, s, "staff@example.com")

	// 普通用户被拒
	w := doJSON(t, s, http.MethodPost, "/categories", userToken, gin.H{"name": "Soups"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("user create: expected 403, got %d", w.Code)
	}

	// staff 创建成功
	w = doJSON(t, s, http.MethodPost, "/categories", staffToken, gin.H{
		"name":        "Soups",
		"description": "Warm bowls",
		"icon":        "fa-bowl-hot",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("staff create: status %d body %s", w.Code, w.Body.String())
	}
	var created struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}
	decodeJSON(t, w, &created)

	// 同名冲突
	w = doJSON(t, s, http.MethodPost, "/categories", staffToken, gin.H{"name": "Soups"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate name: expected 409, got %d (%s)", w.Code, w.Body.String())
	}

	// staff 更新
	path := "/categories/" + uintToPath(created.ID)
	w = doJSON(t, s, http.MethodPatch, path, staffToken, gin.H{"description": "Hot bowls"})
	if w.Code != http.StatusOK {
		t.Fatalf("staff update: status %d body %s", w.Code, w.Body.String())
	}

	// staff 删除空分类
	w = doJSON(t, s, http.MethodDelete, path, staffToken, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("staff delete: expected 204, got %d", w.Code)
	}
}

func TestDeleteCategory_BlockedWhenInUse(t *testing.T) {
	s, _ := newTestServer(t)
	authorToken, _ := registerUser(t, s, "author@example.com")
	staffToken, _ := registerStaff(t, s, "staff@example.com")
	catID := seedCategory(t, s, "Dinner")

	createRecipe(t, s, authorToken, "Blocking Dish", catID, true)

	w := doJSON(t, s, http.MethodDelete, "/categories/"+uintToPath(catID), staffToken, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when category has recipes, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestListCategories_PublishedCounts(t *testing.T) {
	s, _ := newTestServer(t)
	authorToken, _ := registerUser(t, s, "author@example.com")
	dinner := seedCategory(t, s, "Dinner")
	dessert := seedCategory(t, s, "Dessert")

	createRecipe(t, s, authorToken, "Public Dish", dinner, false)
	createRecipe(t, s, authorToken, "Hidden Draft", dinner, true)

	w := doJSON(t, s, http.MethodGet, "/categories", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d body %s", w.Code, w.Body.String())
	}
	var resp []struct {
		ID           uint   `json:"id"`
		Name         string `json:"name"`
		RecipesCount int64  `json:"recipes_count"`
	}
	decodeJSON(t, w, &resp)
	counts := map[uint]int64{}
	for _, c := range resp {
		counts[c.ID] = c.RecipesCount
	}
	// 草稿不计入
	if counts[dinner] != 1 {
		t.Errorf("dinner count: expected 1, got %d", counts[dinner])
	}
	if counts[dessert] != 0 {
		t.Errorf("dessert count: expected 0, got %d", counts[dessert])
	}
}

func TestPopularCategories(t *testing.T) {
	s, _ := newTestServer(t)
	authorToken, _ := registerUser(t, s, "author@example.com")
	dinner := seedCategory(t, s, "Dinner")
	dessert := seedCategory(t, s, "Dessert")
	seedCategory(t, s, "Empty")

	createRecipe(t, s, authorToken, "Dish One", dinner, false)
	createRecipe(t, s, authorToken, "Dish Two", dinner, false)
	createRecipe(t, s, authorToken, "Cake", dessert, false)

	w := doJSON(t, s, http.MethodGet, "/categories/popular", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("popular: status %d body %s", w.Code, w.Body.String())
	}
	var resp []struct {
		Name         string `json:"name"`
		RecipesCount int64  `json:"recipes_count"`
	}
	decodeJSON(t, w, &resp)
	if len(resp) != 2 {
		t.Fatalf("expected 2 categories with published recipes, got %d", len(resp))
	}
	if resp[0].Name != "Dinner" || resp[0].RecipesCount != 2 {
		t.Errorf("expected Dinner first with 2 recipes, got %+v", resp[0])
	}
}

func TestCategoryRecipes_PublishedOnly(t *testing.T) {
	s, _ := newTestServer(t)
	authorToken, _ := registerUser(t, s, "author@example.com")
	catID := seedCategory(t, s, "Dinner")

	createRecipe(t, s, authorToken, "Visible Dish", catID, false)
	createRecipe(t, s, authorToken, "Hidden Draft", catID, true)

	w := doJSON(t, s, http.MethodGet, "/categories/"+uintToPath(catID)+"/recipes", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp []struct {
		Title string `json:"title"`
	}
	decodeJSON(t, w, &resp)
	if len(resp) != 1 || resp[0].Title != "Visible Dish" {
		t.Errorf("expected only published recipe, got %+v", resp)
	}
}
