package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sinag-platform/vantage-backend/internal/http/response"
	"github.com/sinag-platform/vantage-backend/internal/indicatortree"
	"github.com/sinag-platform/vantage-backend/internal/indicatortree/template"
	"github.com/sinag-platform/vantage-backend/internal/services"
)

const maxTemplateBytes = 2 << 20

type IndicatorDraftHandler struct {
	drafts services.IndicatorDraftService
}

func NewIndicatorDraftHandler(drafts services.IndicatorDraftService) *IndicatorDraftHandler {
	return &IndicatorDraftHandler{drafts: drafts}
}

func draftIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_draft_id", err)
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/indicator-drafts
func (h *IndicatorDraftHandler) CreateDraft(c *gin.Context) {
	var req services.CreateDraftInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.drafts.CreateDraft(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, "draft_create_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"draft": view})
}

// POST /api/indicator-drafts/import?title=
//
// The body is a YAML template.
func (h *IndicatorDraftHandler) ImportTemplate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTemplateBytes)
	raw, err := c.GetRawData()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	tpl, err := template.Parse(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_template", err)
		return
	}
	if gov := strings.TrimSpace(c.Query("governance_area_id")); gov != "" {
		n, err := strconv.Atoi(gov)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_governance_area", fmt.Errorf("governance_area_id must be a positive integer"))
			return
		}
		tpl.GovernanceAreaID = n
	}
	view, err := h.drafts.ImportTemplate(c.Request.Context(), tpl, c.Query("title"))
	if err != nil {
		response.RespondAPIError(c, "template_import_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"draft": view})
}

// GET /api/indicator-drafts?governance_area_id=
func (h *IndicatorDraftHandler) ListDrafts(c *gin.Context) {
	gov, err := strconv.Atoi(strings.TrimSpace(c.Query("governance_area_id")))
	if err != nil || gov <= 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_governance_area", fmt.Errorf("governance_area_id must be a positive integer"))
		return
	}
	drafts, err := h.drafts.ListDrafts(c.Request.Context(), gov)
	if err != nil {
		response.RespondAPIError(c, "draft_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"drafts": drafts})
}

// GET /api/indicator-drafts/:id
func (h *IndicatorDraftHandler) GetDraft(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	view, err := h.drafts.GetDraft(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, "draft_load_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}

// DELETE /api/indicator-drafts/:id?discard=true
func (h *IndicatorDraftHandler) CloseDraft(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	discard, _ := strconv.ParseBool(c.DefaultQuery("discard", "false"))
	if err := h.drafts.CloseDraft(c.Request.Context(), id, discard); err != nil {
		response.RespondAPIError(c, "draft_close_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// bindOptionalJSON binds a JSON body, treating an empty body as {}.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type addNodeRequest struct {
	ParentID *string `json:"parent_id"`
	indicatortree.NodePatch
}

// POST /api/indicator-drafts/:id/nodes
func (h *IndicatorDraftHandler) AddNode(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	var req addNodeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	node, err := h.drafts.AddNode(c.Request.Context(), id, req.ParentID, req.NodePatch)
	if err != nil {
		response.RespondAPIError(c, "add_node_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"node": node})
}

// GET /api/indicator-drafts/:id/nodes/:nodeId
func (h *IndicatorDraftHandler) GetNode(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	node, err := h.drafts.GetNode(c.Request.Context(), id, c.Param("nodeId"))
	if err != nil {
		response.RespondAPIError(c, "get_node_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"node": node})
}

// GET /api/indicator-drafts/:id/nodes/:nodeId/children
func (h *IndicatorDraftHandler) GetChildren(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	nodes, err := h.drafts.GetChildren(c.Request.Context(), id, c.Param("nodeId"))
	if err != nil {
		response.RespondAPIError(c, "get_children_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"nodes": nodes})
}

// PATCH /api/indicator-drafts/:id/nodes/:nodeId
func (h *IndicatorDraftHandler) UpdateNode(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	var patch indicatortree.NodePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	node, err := h.drafts.UpdateNode(c.Request.Context(), id, c.Param("nodeId"), patch)
	if err != nil {
		response.RespondAPIError(c, "update_node_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"node": node})
}

// DELETE /api/indicator-drafts/:id/nodes/:nodeId
func (h *IndicatorDraftHandler) DeleteNode(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	removed, err := h.drafts.DeleteNode(c.Request.Context(), id, c.Param("nodeId"))
	if err != nil {
		response.RespondAPIError(c, "delete_node_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"removed": removed})
}

// POST /api/indicator-drafts/:id/nodes/:nodeId/duplicate?include_children=true
func (h *IndicatorDraftHandler) DuplicateNode(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	includeChildren, err := strconv.ParseBool(c.DefaultQuery("include_children", "false"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	node, err := h.drafts.DuplicateNode(c.Request.Context(), id, c.Param("nodeId"), includeChildren)
	if err != nil {
		response.RespondAPIError(c, "duplicate_node_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"node": node})
}

type moveNodeRequest struct {
	ParentID *string `json:"parent_id"`
	Index    *int    `json:"index"`
}

// POST /api/indicator-drafts/:id/nodes/:nodeId/move
func (h *IndicatorDraftHandler) MoveNode(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	var req moveNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	node, err := h.drafts.MoveNode(c.Request.Context(), id, c.Param("nodeId"), req.ParentID, req.Index)
	if err != nil {
		response.RespondAPIError(c, "move_node_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"node": node})
}

type reorderRequest struct {
	ParentID   *string  `json:"parent_id"`
	OrderedIDs []string `json:"ordered_ids"`
}

// POST /api/indicator-drafts/:id/reorder
func (h *IndicatorDraftHandler) ReorderNodes(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	nodes, err := h.drafts.ReorderNodes(c.Request.Context(), id, req.ParentID, req.OrderedIDs)
	if err != nil {
		response.RespondAPIError(c, "reorder_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"nodes": nodes})
}

// POST /api/indicator-drafts/:id/select
func (h *IndicatorDraftHandler) SelectNode(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	var req services.SelectionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.drafts.SelectNode(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, "select_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"selected_id": view.SelectedID, "editing_id": view.EditingID})
}

// PUT /api/indicator-drafts/:id/workflow
func (h *IndicatorDraftHandler) SetWorkflow(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	var req services.WorkflowInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.drafts.SetWorkflow(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, "workflow_update_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"creation_mode":       view.CreationMode,
		"current_step":        view.CurrentStep,
		"has_unsaved_changes": view.HasUnsavedChanges,
	})
}

// POST /api/indicator-drafts/:id/save
func (h *IndicatorDraftHandler) SaveDraft(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	view, err := h.drafts.SaveDraft(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, "draft_save_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}

// POST /api/indicator-drafts/:id/submit
func (h *IndicatorDraftHandler) SubmitDraft(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	res, err := h.drafts.SubmitDraft(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, "draft_submit_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"submission": res})
}

// GET /api/indicator-drafts/:id/export
func (h *IndicatorDraftHandler) Export(c *gin.Context) {
	id, ok := draftIDParam(c)
	if !ok {
		return
	}
	nodes, err := h.drafts.Export(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, "export_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"indicators": nodes})
}
