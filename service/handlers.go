// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package service

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/queue"
	"github.com/kbase/dts-orchestrator/store"
	"github.com/kbase/dts-orchestrator/transfer"
)

// SubmitTransferRequest is the body of a POST /submitTransfer request.
type SubmitTransferRequest struct {
	ProductId       string `json:"product_id"`
	DestinationPath string `json:"destination_path"`
	PrepareActivity string `json:"prepare_activity,omitempty"`
}

// SubmitTransferResponse is returned for a successful submission.
type SubmitTransferResponse struct {
	TransferId string `json:"transfer_id"`
}

func registerSubmitTransfer(api huma.API, s *Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "submitTransfer",
		Method:        http.MethodPost,
		Path:          "/submitTransfer",
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *struct {
		Body SubmitTransferRequest
	}) (*struct{ Body SubmitTransferResponse }, error) {
		submitter := callerDN(ctx)
		id, err := transfer.Submit(transfer.Specification{
			ProductId:       input.Body.ProductId,
			DestinationPath: input.Body.DestinationPath,
			Submitter:       submitter,
			PrepareActivity: input.Body.PrepareActivity,
		})
		if err != nil {
			if _, ok := err.(transfer.InvalidSpecificationError); ok {
				return nil, huma.Error400BadRequest(err.Error())
			}
			return nil, huma.Error500InternalServerError(err.Error())
		}

		// transfer.Submit only creates the INIT row: this is the one place
		// that knows whether the publish below actually succeeded, so
		// only here do we advance the row to SUBMITTED.
		if err := queue.Publish(config.Queue.StagingQueue, id); err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}
		if err := store.UpdateStatus(id, string(transfer.StatusInit), string(transfer.StatusSubmitted),
			store.Fields{}); err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}

		resp := &struct{ Body SubmitTransferResponse }{}
		resp.Body.TransferId = id
		return resp, nil
	})
}

// TransferStatusResponse carries a transfer's id, status, extra_status and
// FTS job id/details. The row's other columns, its timestamps included, are
// not returned.
type TransferStatusResponse struct {
	TransferId  string `json:"transfer_id"`
	Status      string `json:"status"`
	ExtraStatus string `json:"extra_status,omitempty"`
	FTSJobId    string `json:"fts_job_id,omitempty"`
	FTSDetails  string `json:"fts_details,omitempty"`
}

func registerTransferStatus(api huma.API, s *Service) {
	huma.Register(api, huma.Operation{
		OperationID: "transferStatus",
		Method:      http.MethodGet,
		Path:        "/transferStatus",
	}, func(ctx context.Context, input *struct {
		TransferId string `query:"transfer_id"`
	}) (*struct{ Body TransferStatusResponse }, error) {
		if input.TransferId == "" {
			return nil, huma.Error400BadRequest("transfer_id is required")
		}
		requester := callerDN(ctx)
		row, err := transfer.StatusOf(input.TransferId, requester)
		if err != nil {
			switch err.(type) {
			case transfer.NotSubmitterError:
				return nil, huma.Error403Forbidden(err.Error())
			case *store.NotFoundError:
				return nil, huma.Error404NotFound(err.Error())
			}
			return nil, huma.Error500InternalServerError(err.Error())
		}
		resp := &struct{ Body TransferStatusResponse }{}
		resp.Body = TransferStatusResponse{
			TransferId:  row.TransferId,
			Status:      row.Status,
			ExtraStatus: row.ExtraStatus,
			FTSJobId:    row.FTSId,
			FTSDetails:  row.FTSDetails,
		}
		return resp, nil
	})
}

// DoneStagingRequest is the body the stager POSTs to /doneStaging when
// staging finishes, successfully or not.
type DoneStagingRequest struct {
	TransferId     string `json:"transfer_id"`
	Success        bool   `json:"success"`
	StagerHostname string `json:"stager_hostname"`
	StagerPath     string `json:"stager_path"`
	Message        string `json:"message,omitempty"`
}

func registerDoneStaging(api huma.API, s *Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "doneStaging",
		Method:        http.MethodPost,
		Path:          "/doneStaging",
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct {
		Body DoneStagingRequest
	}) (*struct{}, error) {
		err := s.stager.Finish(input.Body.TransferId, input.Body.Success,
			input.Body.StagerHostname, input.Body.StagerPath, input.Body.Message)
		if err != nil {
			return nil, huma.Error409Conflict(err.Error())
		}
		return &struct{}{}, nil
	})
}

// DonePrepareRequest is the body the transfer-host agent POSTs to
// /donePrepare when preprocessing finishes, successfully or not.
type DonePrepareRequest struct {
	TransferId string `json:"transfer_id"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
}

func registerDonePrepare(api huma.API, s *Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "donePrepare",
		Method:        http.MethodPost,
		Path:          "/donePrepare",
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct {
		Body DonePrepareRequest
	}) (*struct{}, error) {
		err := s.preparer.Finish(input.Body.TransferId, input.Body.Success, input.Body.Message)
		if err != nil {
			return nil, huma.Error409Conflict(err.Error())
		}
		return &struct{}{}, nil
	})
}
