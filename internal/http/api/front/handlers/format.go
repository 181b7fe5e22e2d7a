package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/trustlend/trustlend/internal/chain"
	"github.com/trustlend/trustlend/internal/loanrequest"
	"github.com/trustlend/trustlend/internal/models"
	"github.com/trustlend/trustlend/internal/profile"
)

func formatProfile(p *models.Profile) gin.H {
	if p == nil {
		return nil
	}
	return gin.H{
		"id":               p.ID,
		"userId":           p.UserID,
		"displayName":      p.DisplayName,
		"avatarUrl":        p.AvatarURL,
		"role":             p.Role,
		"allowAssessments": p.AllowAssessments,
		"credits":          p.Credits.InexactFloat64(),
		"isBorrower":       p.IsBorrower(),
		"isLender":         p.IsLender(),
		"createdAt":        p.CreatedAt,
		"updatedAt":        p.UpdatedAt,
	}
}

func formatProfileView(v *profile.View) gin.H {
	out := formatProfile(&v.Profile)
	out["email"] = v.Email
	out["walletsCount"] = v.WalletsCount
	out["documentsCount"] = v.DocumentsCount
	return out
}

func formatWallet(w models.Wallet) gin.H {
	return gin.H{
		"id":                 w.ID,
		"address":            w.Address,
		"nickname":           w.Nickname,
		"isPrimary":          w.IsPrimary,
		"humanityScore":      w.HumanityScore,
		"lastScoreUpdate":    w.LastScoreUpdate,
		"isHumanityVerified": w.IsHumanityVerified,
		"connectedAt":        w.ConnectedAt,
	}
}

func formatLoanRequest(r models.LoanRequest) gin.H {
	return gin.H{
		"id":               r.ID,
		"shortId":          r.ShortID,
		"userId":           r.UserID,
		"amount":           r.Amount,
		"amountEth":        chain.USDToETH(r.Amount).InexactFloat64(),
		"amountWei":        chain.ToWei(chain.USDToETH(r.Amount)).String(),
		"duration":         r.Duration,
		"purpose":          r.Purpose,
		"note":             r.Note,
		"allowAssessments": r.AllowAssessments,
		"status":           r.Status,
		"isPublished":      r.IsPublished,
		"payoutWalletId":   r.PayoutWalletID,
		"blockchainTxHash": r.BlockchainTxHash,
		"isOnChain":        r.IsOnChain,
		"isFunded":         r.IsFunded,
		"fundedBy":         r.FundedBy,
		"fundingTxHash":    r.FundingTxHash,
		"createdAt":        r.CreatedAt,
		"updatedAt":        r.UpdatedAt,
	}
}

func formatBorrower(b loanrequest.Borrower) gin.H {
	return gin.H{
		"displayName":              b.DisplayName,
		"walletsCount":             b.WalletsCount,
		"humanityScore":            b.HumanityScore,
		"isHumanityVerified":       b.HumanityVerified,
		"hasExistingAssessment":    b.HasExistingAssessment,
		"existingAssessmentStatus": b.ExistingAssessmentStatus,
		"completedAssessments":     b.CompletedAssessments,
	}
}

func formatDocument(d models.Document) gin.H {
	return gin.H{
		"id":            d.ID,
		"loanRequestId": d.LoanRequestID,
		"vaultRef":      d.VaultRef,
		"filename":      d.Filename,
		"category":      d.Category,
		"documentType":  d.DocumentType,
		"keyDetails":    stringsOrEmpty(d.KeyDetails),
		"summary":       d.Summary,
		"confidence":    d.Confidence,
		"uploadedAt":    d.UploadedAt,
	}
}

func formatAssessment(a models.AssessmentRequest) gin.H {
	return gin.H{
		"id":              a.ID,
		"lenderId":        a.LenderID,
		"borrowerId":      a.BorrowerID,
		"loanRequestId":   a.LoanRequestID,
		"status":          a.Status,
		"fee":             a.Fee.InexactFloat64(),
		"trustScore":      a.TrustScore,
		"summaryBullets":  stringsOrEmpty(a.SummaryBullets),
		"riskFactors":     stringsOrEmpty(a.RiskFactors),
		"recommendations": stringsOrEmpty(a.Recommendations),
		"requestedAt":     a.RequestedAt,
		"completedAt":     a.CompletedAt,
		"declinedAt":      a.DeclinedAt,
	}
}

func formatKeypair(k *models.Keypair) gin.H {
	return gin.H{
		"publicKey": k.PublicKey,
		"did":       k.DID,
		"createdAt": k.CreatedAt,
	}
}

func stringsOrEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
