package services

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/creatorcall/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// SettlementExportService renders paid payouts as ISO 20022 messages for
// the bank-side settlement feed: pacs.008 credit transfers and pacs.002
// status reports.
type SettlementExportService struct {
	payouts  *PayoutService
	accounts *CreatorAccountService
}

func NewSettlementExportService(payouts *PayoutService, accounts *CreatorAccountService) *SettlementExportService {
	return &SettlementExportService{
		payouts:  payouts,
		accounts: accounts,
	}
}

// ExportSettlementMessage returns the pacs.008 for a paid payout
// @Summary Payout settlement message
// @Description Render a paid payout as an ISO 20022 pacs.008 credit transfer
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param payoutId path string true "Payout ID"
// @Success 200 {object} object{status=string,messageType=string,xml=string}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /payouts/{payoutId}/settlement-message [get]
func (ses *SettlementExportService) ExportSettlementMessage(w http.ResponseWriter, r *http.Request) {
	payoutID := chi.URLParam(r, "payoutId")

	payout, err := ses.payouts.Get(r.Context(), payoutID)
	if err != nil {
		if errors.Is(err, ErrPayoutNotFound) {
			SendErrorResponse(w, "Payout not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch payout", http.StatusInternalServerError, nil)
		}
		return
	}

	if payout.Status != models.PayoutStatusPaid {
		SendErrorResponse(w, "Settlement messages are only available for paid payouts", http.StatusConflict, nil)
		return
	}

	acct, err := ses.accounts.Get(r.Context(), payout.CreatorID)
	if err != nil {
		SendErrorResponse(w, "Payout account unavailable", http.StatusInternalServerError, nil)
		return
	}

	doc, err := ses.CreatePacs008(payout, acct)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	xmlData, err := ses.ConvertToXML(doc)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "exported",
		"messageType": "pacs.008.001.08",
		"xml":         xmlData,
	})
}

// CreatePacs008 builds the FIToFICustomerCreditTransfer for one payout.
func (ses *SettlementExportService) CreatePacs008(payout *models.Payout, acct *models.CreatorAccount) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgID := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	amount := float64(payout.AmountCents) / 100

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(payout.Currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(payout.ID)}[0],
					EndToEndId: common.Max35Text(payout.ExternalPayoutRef),
					TxId:       &[]common.Max35Text{common.Max35Text(payout.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(payout.Currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("CREATRCL")}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("CreatorCall Platform")}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(acct.ExternalAccountID),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(payout.CreatorID)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 builds a payment status report for a payout. status is an
// external status code such as ACCP, ACSC or RJCT.
func (ses *SettlementExportService) CreatePacs002(payout *models.Payout, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgID := uuid.New().String()
	creDtTm := time.Now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(payout.ID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(payout.ExternalPayoutRef)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(payout.ID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML marshals an ISO 20022 document with the XML header.
func (ses *SettlementExportService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
