package transfer

type LinkedinTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

type LinkedinUserInfo struct {
	Sub        string `json:"sub"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	Email      string `json:"email"`
}

type LinkedinRegisterUploadRequest struct {
	RegisterUploadRequest LinkedinRegisterUpload `json:"registerUploadRequest"`
}

type LinkedinRegisterUpload struct {
	Recipes              []string                      `json:"recipes"`
	Owner                string                        `json:"owner"`
	ServiceRelationships []LinkedinServiceRelationship `json:"serviceRelationships"`
}

type LinkedinServiceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type LinkedinRegisterUploadResponse struct {
	Value LinkedinRegisterUploadValue `json:"value"`
}

type LinkedinRegisterUploadValue struct {
	Asset           string                  `json:"asset"`
	UploadMechanism LinkedinUploadMechanism `json:"uploadMechanism"`
}

type LinkedinUploadMechanism struct {
	MediaUploadHTTPRequest LinkedinMediaUploadRequest `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
}

type LinkedinMediaUploadRequest struct {
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"headers"`
}

type LinkedinShareRequest struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent LinkedinSpecificContent `json:"specificContent"`
	Visibility      LinkedinShareVisibility `json:"visibility"`
}

type LinkedinSpecificContent struct {
	ShareContent LinkedinShareContent `json:"com.linkedin.ugc.ShareContent"`
}

type LinkedinShareContent struct {
	ShareCommentary    LinkedinText         `json:"shareCommentary"`
	ShareMediaCategory string               `json:"shareMediaCategory"`
	Media              []LinkedinShareMedia `json:"media,omitempty"`
}

type LinkedinText struct {
	Text string `json:"text"`
}

type LinkedinShareMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type LinkedinShareVisibility struct {
	MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
}

type LinkedinShareResponse struct {
	ID string `json:"id"`
}

type LinkedinErrorResponse struct {
	Message          string `json:"message"`
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Status           int    `json:"status"`
}
